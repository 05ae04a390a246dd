// Package whatsapp wraps the whatsmeow client for linked-device WhatsApp
// deployments of Review Bridge.
//
// It handles the device store, the QR/numeric-code login flow, sending
// messages, and surfacing inbound message events.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/obenan/reviewbridge/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Constants for WhatsApp client configuration.
const (
	// DefaultSQLitePath is the default path for the whatsmeow device
	// database.
	DefaultSQLitePath = "/var/lib/reviewbridge/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // use a numeric login code instead of a QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow device database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput instructs the client to write the login QR code to the
// specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode instructs the client to print a numeric login code
// instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client wraps the whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient creates and connects a WhatsApp client, running the login flow
// if the device store has no session yet.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled; "+
				"whatsmeow strongly recommends enabling them",
				"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	logger := waLog.Stdout("Database", "INFO", true)
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("Failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

// SendMessage sends a text message to the specified recipient.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp message sent successfully", "to", to)
	return nil
}

// OnIncomingMessage registers a handler for inbound direct text messages.
// Group chats and the device's own messages are ignored.
func (c *Client) OnIncomingMessage(handler func(from, body string, at time.Time)) {
	c.waClient.AddEventHandler(func(evt interface{}) {
		msg, ok := evt.(*events.Message)
		if !ok {
			return
		}
		if msg.Info.IsFromMe || msg.Info.IsGroup {
			return
		}
		body := msg.Message.GetConversation()
		if body == "" {
			if ext := msg.Message.GetExtendedTextMessage(); ext != nil {
				body = ext.GetText()
			}
		}
		if body == "" {
			return
		}
		handler(msg.Info.Sender.User, body, msg.Info.Timestamp)
	})
}

// Disconnect closes the connection to WhatsApp.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}
