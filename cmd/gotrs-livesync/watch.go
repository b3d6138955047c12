package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gotrs-io/gotrs-livesync/internal/api"
	"github.com/gotrs-io/gotrs-livesync/internal/channel"
	"github.com/gotrs-io/gotrs-livesync/internal/config"
	"github.com/gotrs-io/gotrs-livesync/internal/metrics"
	"github.com/gotrs-io/gotrs-livesync/internal/models"
	"github.com/gotrs-io/gotrs-livesync/internal/runner"
	"github.com/gotrs-io/gotrs-livesync/internal/runner/tasks"
	"github.com/gotrs-io/gotrs-livesync/internal/subscription"
	"github.com/gotrs-io/gotrs-livesync/internal/ticketlist"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live ticket list",
	Long: `Watch loads the first page of tickets matching the filter, subscribes to
the tenant channel and reprints the list whenever it changes.

A status API is served on status.addr unless --no-api is given.`,
	RunE: runWatch,
}

var (
	statusFlag string
	queueFlag  []int64
	tagFlag    []int64
	userFlag   []int64
	allFlag    bool
	meFlag     int64
	searchFlag string
	noAPIFlag  bool
	quietFlag  bool
)

func init() {
	addFilterFlags(watchCmd)
	watchCmd.Flags().BoolVar(&noAPIFlag, "no-api", false, "Do not serve the status API")
	watchCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Do not print the list on every change")
	rootCmd.AddCommand(watchCmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&statusFlag, "status", "", "Ticket status (open, pending, closed)")
	cmd.Flags().Int64SliceVar(&queueFlag, "queue", nil, "Queue ids to include")
	cmd.Flags().Int64SliceVar(&tagFlag, "tag", nil, "Tag ids to include")
	cmd.Flags().Int64SliceVar(&userFlag, "user", nil, "Assignee ids to include")
	cmd.Flags().BoolVar(&allFlag, "all", false, "Show every ticket instead of only mine")
	cmd.Flags().Int64Var(&meFlag, "me", 0, "Current user id for \"mine\" views")
	cmd.Flags().StringVar(&searchFlag, "search", "", "Free-text search term")
}

// filterFromFlags starts from the configured filter and applies the flags
// that were set explicitly.
func filterFromFlags(cmd *cobra.Command, base models.TicketFilter) (models.TicketFilter, error) {
	f := base
	flags := cmd.Flags()
	if flags.Changed("status") {
		status, err := models.ParseTicketStatus(statusFlag)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	if flags.Changed("queue") {
		f.QueueIDs = queueFlag
	}
	if flags.Changed("tag") {
		f.TagIDs = tagFlag
	}
	if flags.Changed("user") {
		f.UserIDs = userFlag
	}
	if flags.Changed("all") {
		f.ShowAll = allFlag
	}
	if flags.Changed("me") {
		f.CurrentUserID = meFlag
	}
	if flags.Changed("search") {
		f.Search = searchFlag
	}
	return f.Normalize(), nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	loader, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := loader.Get()

	filter, err := filterFromFlags(cmd, cfg.Sync.Filter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	m := metrics.New(reg)

	apiClient, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}
	ch, err := newChannel(cfg, logger, m)
	if err != nil {
		return err
	}
	defer ch.Close()

	mgr := subscription.New(ch, apiClient.Tickets,
		subscription.WithLogger(logger),
		subscription.WithMetrics(m),
		subscription.WithSearchDebounce(cfg.Sync.SearchDebounce),
	)
	defer mgr.Close()

	loader.OnChange(func(c *config.Config) {
		zerolog.SetGlobalLevel(c.Logging.ParseLevel())
		logger.Info().Str("level", c.Logging.ParseLevel().String()).Msg("log level updated")
	})
	loader.Watch()

	if !quietFlag {
		printer := &listPrinter{out: cmd.OutOrStdout()}
		mgr.OnChange(printer.print)
	}
	mgr.OnState(func(s channel.State) {
		logger.Info().Str("state", s.String()).Msg("channel state")
	})

	if err := mgr.SetFilter(ctx, filter); err != nil {
		var pageErr *subscription.PageError
		if !errors.As(err, &pageErr) {
			return err
		}
		// the subscription is live; the list fills from events or the next resync
		logger.Warn().Err(err).Msg("initial page failed")
	}

	if cfg.Sync.ResyncSchedule != "" {
		registry := runner.NewTaskRegistry()
		registry.Register(tasks.NewResyncTask(mgr, cfg.Sync.ResyncSchedule, cfg.API.Timeout))
		r := runner.NewRunner(registry, logger)
		if err := r.Start(ctx); err != nil {
			return err
		}
		defer r.Stop()
	}

	var srv *http.Server
	if !noAPIFlag && cfg.Status.Addr != "" {
		if cfg.App.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		srv = &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           api.NewRouter(mgr, reg, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", srv.Addr).Msg("status API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("status API stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("status API shutdown")
		}
	}
	return nil
}

// listPrinter reprints the whole list for every snapshot.
type listPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *listPrinter) print(c ticketlist.Collection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n%d tickets, %d unread\n", c.Len(), c.Unread())
	_ = renderTable(p.out, c.Tickets(), time.Now())
}
