package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
)

var args struct {
	Token              string `arg:"-t,--token" help:"telegram bot token"`
	TokenEnvKey        string `arg:"--token-env-key" help:"telegram bot token env key"`
	FirebaseConf       string `arg:"-c,--conf" help:"firebase service account base64 conf"`
	FirebaseConfEnvKey string `arg:"--conf-env-key" help:"firebase service account base64 conf env key"`
	Settings           string `arg:"-s,--settings" help:"optional yaml settings file"`
	Memory             bool   `arg:"--memory" help:"use the volatile in-memory store (development only)"`
}

func launch(token string, settings *Settings) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Reload(); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}

	chatTitles := NewTTLCache[int64, string](settings.CacheSize, settings.CacheTTL())
	session, err = NewSession(token, chatTitles)
	if err != nil {
		return err
	}

	fetcher := NewFetcher(settings.UserAgent, settings.FetchTimeout())
	registry = NewRegistry(store, fetcher, session, settings)
	dispatcher := NewDispatcher(session, settings.SendDelay())
	health := NewHealthTracker(store, session, settings.FailureThreshold)
	monitor = NewMonitor(store, fetcher, dispatcher, health, settings)

	session.Run(registry)
	monitor.Run()
	logger.Infof("poller started (checking every %s)", settings.PollInterval())
	return nil
}

// openStore picks the document store. Without one configured the whole
// subsystem must not start.
func openStore() (Datastore, error) {
	conf := args.FirebaseConf
	if conf == "" && args.FirebaseConfEnvKey != "" {
		conf = os.Getenv(args.FirebaseConfEnvKey)
	}

	switch {
	case conf != "":
		credentials, err := base64.StdEncoding.DecodeString(conf)
		if err != nil {
			return nil, fmt.Errorf("decode firebase conf: %w", err)
		}
		return NewFirebase(credentials), nil
	case args.Memory:
		logger.Warnf("using the in-memory store, nothing will survive a restart")
		return &MemCache{}, nil
	}
	return nil, fmt.Errorf("no document store configured")
}

func main() {
	arg.MustParse(&args)

	settings, err := LoadSettings(args.Settings)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := InitLogger(settings.Log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	token := args.Token
	if token == "" && args.TokenEnvKey != "" {
		token = os.Getenv(args.TokenEnvKey)
	}
	if token == "" {
		logger.Fatalf("token not found")
	}

	if err := launch(token, settings); err != nil {
		logger.Fatalf("launch failed: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	monitor.Stop()
	_ = logger.Sync()
}
