package telegram

import (
	"github.com/go-telegram/bot/models"
)

// Callback data
const (
	cbRegisterYes = "reg_yes"
	cbRegisterNo  = "reg_no"
	cbBalance     = "balance"
	cbInfo        = "info"
)

// MainKeyboard returns the main menu keyboard
func MainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💰 Balance", CallbackData: cbBalance},
				{Text: "ℹ️ Info", CallbackData: cbInfo},
			},
		},
	}
}

// RegisterConfirmKeyboard asks the user to confirm a wallet registration
func RegisterConfirmKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Register", CallbackData: cbRegisterYes},
				{Text: "❌ Cancel", CallbackData: cbRegisterNo},
			},
		},
	}
}
