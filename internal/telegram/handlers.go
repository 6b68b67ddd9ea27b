package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/xlm-tipbot/internal/command"
	"github.com/suspectuso/xlm-tipbot/internal/horizon"
)

const (
	msgRegisterDeclined = "We won't register you now. Feel free to register another time."
	msgConfirmExpired   = "This confirmation has expired. Send /register again."
	msgQueueUnavailable = "We couldn't accept your request right now. Please try again later."
)

// Commands runs a command and returns the reply
type Commands interface {
	HandleCommand(ctx context.Context, cmd command.Command) string
}

// Deferred accepts commands that are executed later
type Deferred interface {
	Push(ctx context.Context, cmd command.Command) (string, error)
}

// Config holds the adapter settings
type Config struct {
	Token        string
	DevelopersID string
	ConfirmTTL   time.Duration
}

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot      *bot.Bot
	cfg      Config
	commands Commands
	deferred Deferred
	states   *StateManager
	log      *slog.Logger
}

// New creates a new telegram bot. Call Use before Start.
func New(cfg Config, log *slog.Logger) (*Bot, error) {
	if cfg.ConfirmTTL <= 0 {
		cfg.ConfirmTTL = 5 * time.Minute
	}

	b := &Bot{
		cfg:    cfg,
		states: NewStateManager(cfg.ConfirmTTL),
		log:    log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot
	return b, nil
}

// Use sets the command handlers
func (b *Bot) Use(commands Commands, deferred Deferred) {
	b.commands = commands
	b.deferred = deferred
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Handlers ---

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil {
		return
	}

	reply, keyboard := b.handleMessage(ctx, msg)
	if reply != "" {
		b.sendMessage(ctx, msg.Chat.ID, reply, keyboard)
	}
}

// handleMessage turns a message into a reply, running or queueing the command it carries
func (b *Bot) handleMessage(ctx context.Context, msg *models.Message) (string, *models.InlineKeyboardMarkup) {
	cmd, mode, err := parseCommand(msg, b.cfg.DevelopersID)
	if err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			return usage.text, nil
		}
		return "", nil
	}

	log := b.log.With("type", cmd.Type, "user_id", msg.From.ID, "hash", cmd.Hash)

	switch mode {
	case dispatchConfirm:
		b.states.Set(msg.From.ID, StateConfirmRegister, cmd)
		text := fmt.Sprintf("Register wallet %s with your account?", horizon.ShortAddr(cmd.WalletAddress, 6))
		return text, RegisterConfirmKeyboard()

	case dispatchDeferred:
		ack, err := b.deferred.Push(ctx, cmd)
		if err != nil {
			log.Error("push command", "error", err)
			return msgQueueUnavailable, nil
		}
		log.Info("command queued")
		return ack, nil
	}

	log.Debug("command received")
	reply := b.commands.HandleCommand(ctx, cmd)
	if cmd.Type == command.TypeInfo {
		return reply, MainKeyboard()
	}
	return reply, nil
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	text := b.handleCallback(ctx, cb.From.ID, cb.Data)
	if text == "" {
		return
	}

	switch cb.Data {
	case cbRegisterYes, cbRegisterNo:
		b.editMessage(ctx, cb.Message, text, nil)
	default:
		if cb.Message.Message != nil {
			b.sendMessage(ctx, cb.Message.Message.Chat.ID, text, nil)
		}
	}
}

// handleCallback returns the text answering a button press
func (b *Bot) handleCallback(ctx context.Context, userID int64, data string) string {
	source := strconv.FormatInt(userID, 10)

	switch data {
	case cbRegisterYes:
		st, ok := b.states.Take(userID, StateConfirmRegister)
		if !ok {
			return msgConfirmExpired
		}
		return b.commands.HandleCommand(ctx, st.Command)
	case cbRegisterNo:
		b.states.Clear(userID)
		return msgRegisterDeclined
	case cbBalance:
		return b.commands.HandleCommand(ctx, command.NewBalance(Adapter, source, ""))
	case cbInfo:
		return b.commands.HandleCommand(ctx, command.NewInfo(Adapter, source))
	}

	b.log.Warn("unknown callback", "data", data, "user_id", userID)
	return ""
}

// --- Helpers ---

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

// SendNotification sends a private message to a user
func (b *Bot) SendNotification(ctx context.Context, userID int64, text string) error {
	disablePreview := true
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: userID,
		Text:   text,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}
