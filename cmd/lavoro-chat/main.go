// ABOUTME: Command-line client for the Lavoro chat: lists, reads, sends and watches conversations.
// ABOUTME: Wires config, token, local snapshot store, REST client, sender enrichment and the socket bridge.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lavoro/lavoro-chat/internal/api"
	"github.com/lavoro/lavoro-chat/internal/auth"
	"github.com/lavoro/lavoro-chat/internal/config"
	"github.com/lavoro/lavoro-chat/internal/conversations"
	"github.com/lavoro/lavoro-chat/internal/enrich"
	"github.com/lavoro/lavoro-chat/internal/logging"
	"github.com/lavoro/lavoro-chat/internal/realtime"
	"github.com/lavoro/lavoro-chat/internal/store"
)

var version = "dev"

// app holds everything a command needs once flags and config are resolved.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tokens   auth.Source
	store    store.Store
	api      *api.Client
	enricher *enrich.Enricher
	svc      *conversations.Service
	userID   string
	jsonOut  bool
	out      io.Writer
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	userID     string
	token      string
	logLevel   string
	jsonOut    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, newRootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the command tree and closes the store afterwards, including
// when the command failed. Cobra skips post-run hooks on error.
func execute(ctx context.Context, build func(*app) *cobra.Command) error {
	a := &app{}
	err := build(a).ExecuteContext(ctx)
	if closeErr := a.close(); closeErr != nil && err == nil {
		err = fmt.Errorf("closing store: %w", closeErr)
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:               "lavoro-chat",
		Short:             "Lavoro chat client",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default $LAVORO_CHAT_CONFIG or ~/.config/lavoro/chat.yaml)")
	pf.StringVarP(&flags.userID, "user", "u", "", "current user id (default: subject of the bearer token)")
	pf.StringVar(&flags.token, "token", "", "bearer token (default: config, $LAVORO_TOKEN, ~/.config/lavoro/token)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override logging.level")
	pf.BoolVar(&flags.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newConversationsCmd(a),
		newHistoryCmd(a),
		newGroupsCmd(a),
		newGroupHistoryCmd(a),
		newContactsCmd(a),
		newSendCmd(a),
		newSendGroupCmd(a),
		newDeleteCmd(a),
		newCreateGroupCmd(a),
		newGroupAddCmd(a),
		newGroupRemoveCmd(a),
		newWatchCmd(a),
		newExportCmd(a),
	)

	return root
}

func (a *app) init(cmd *cobra.Command, flags *globalFlags) error {
	path := flags.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.token != "" {
		cfg.Auth.Token = flags.token
	}

	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.jsonOut = flags.jsonOut
	a.logger = logging.Setup(cfg.Logging, cmd.ErrOrStderr())
	a.tokens = auth.DefaultSource(cfg.Auth.Token, cfg.Auth.TokenFile)

	a.userID = flags.userID
	if a.userID == "" {
		a.userID, err = auth.Subject(a.tokens)
		if err != nil {
			return fmt.Errorf("cannot determine current user (pass --user): %w", err)
		}
	}

	a.store, err = openStore(cfg.Storage)
	if err != nil {
		return err
	}

	a.api = api.New(api.Options{
		BaseURL:        cfg.Server.APIURL,
		HTTPClient:     &http.Client{Transport: headerTransport{header: customHeader(cfg.Server.CustomHeader)}},
		Tokens:         a.tokens,
		RequestTimeout: cfg.Timeouts.Request,
		UploadTimeout:  cfg.Timeouts.Upload,
		Logger:         a.logger,
	})
	a.enricher = enrich.New(a.api, enrich.NewCache(cfg.Cache.SenderCacheSize), a.logger)
	a.svc = conversations.New(a.api, a.store, a.enricher, a.logger)

	a.logger.Debug("client ready", "user_id", a.userID, "api_url", cfg.Server.APIURL, "storage", cfg.Storage.Driver)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// newBridge builds the socket bridge from config. The caller starts it.
func (a *app) newBridge() *realtime.Bridge {
	return realtime.New(realtime.Options{
		URL:              a.cfg.Server.SocketURL,
		Path:             a.cfg.Server.SocketPath,
		Header:           customHeader(a.cfg.Server.CustomHeader),
		Tokens:           a.tokens,
		ReconnectInitial: a.cfg.Realtime.ReconnectInitial,
		ReconnectMax:     a.cfg.Realtime.ReconnectMax,
		QueueSize:        a.cfg.Realtime.QueueSize,
		DedupeTTL:        a.cfg.Realtime.DedupeTTL,
	}, a.logger)
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverSQLite:
		st, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		return st, nil
	default:
		return nil, errors.New("unknown storage driver " + cfg.Driver)
	}
}

func customHeader(values map[string]string) http.Header {
	h := http.Header{}
	for k, v := range values {
		h.Set(k, v)
	}
	return h
}

// headerTransport adds the configured custom headers to every REST request.
type headerTransport struct {
	header http.Header
	base   http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.header) == 0 {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, vs := range t.header {
		req.Header[k] = vs
	}
	return base.RoundTrip(req)
}
