package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"multisigcheck/internal/auth"
	"multisigcheck/internal/catalog"
	"multisigcheck/internal/checklist"
	"multisigcheck/internal/config"
	"multisigcheck/internal/localstore"
	"multisigcheck/internal/remote"
	"multisigcheck/internal/utils"
)

// cli holds the state shared by every command of one process. The shell
// keeps it open across lines so pending saves stay debounced.
type cli struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
	auth   auth.Provider
	store  *checklist.Store

	interactive bool
	errOut      io.Writer
}

// openBrowser launches the system browser; replaced in tests.
var openBrowser = func(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func (c *cli) open(ctx context.Context, errOut io.Writer) error {
	if c.store != nil {
		return nil
	}
	c.errOut = errOut

	cfg, err := config.Load("", c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logOpts := utils.LogOptions{Level: cfg.Log.Level, File: cfg.Log.File, Development: cfg.Log.Development}
	if c.verbose {
		logOpts = utils.LogOptions{Level: "debug", Development: true}
	} else if logOpts.File == "" {
		logOpts.File = filepath.Join(cfg.Client.StateDir, "checklist.log")
	}
	logger, err := utils.NewLogger(logOpts)
	if err != nil {
		return err
	}
	c.logger = logger

	local, err := localstore.Open(cfg.Client.StateDir)
	if err != nil {
		return fmt.Errorf("open local state: %w", err)
	}

	var gateway remote.Gateway = remote.Disabled{}
	c.auth = auth.Disabled{}
	if backend := cfg.Client.BackendBase(); backend != "" {
		provider := auth.NewLoopbackProvider(backend, local, func(url string) error {
			fmt.Fprintf(c.errOut, "Opening %s\n", url)
			return openBrowser(url)
		}, logger)
		c.auth = provider
		gateway = remote.NewClient(backend, &http.Client{Timeout: 30 * time.Second}, provider.Token)
	}

	store, err := checklist.New(checklist.Options{
		Catalog:   catalog.Default(),
		Local:     local,
		Gateway:   gateway,
		Auth:      c.auth,
		Notifier:  checklist.NotifierFunc(c.notify),
		SaveDelay: cfg.Client.SaveDelay.Std(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := store.Start(ctx); err != nil {
		logger.Warn("initial sync failed", zap.Error(err))
	}
	c.store = store
	return nil
}

func (c *cli) notify(n checklist.Notice) {
	w := c.errOut
	if w == nil {
		w = os.Stderr
	}
	if n.Destructive {
		fmt.Fprintf(w, "! %s: %s\n", n.Title, n.Description)
		return
	}
	fmt.Fprintf(w, "* %s: %s\n", n.Title, n.Description)
}

func (c *cli) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	_ = c.logger.Sync()
	return err
}
