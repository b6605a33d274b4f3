package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docindex/docindex/pkg/pipeline"
)

const shutdownGrace = 5 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline manager as a long-lived process with crash recovery",
		Long: `serve starts the pipeline manager with crash recovery enabled and, if
--addr is set, fronts it with a JSON procedure surface (ping/enqueueJob/
getJob/getJobs/cancelJob/clearCompletedJobs) so a RemoteClient in another
process can drive it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address for the remote pipeline surface (empty = no RPC listener)")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	app, err := newApp(configPath, nil)
	if err != nil {
		return err
	}
	defer warnClose("app", app.Close())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline manager: %w", err)
	}
	app.manager.SetCallbacks(progressCallbacks(cmd))

	local := pipeline.NewLocal(app.manager)

	if addr == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "pipeline manager running (no RPC listener); press Ctrl-C to stop")
		<-ctx.Done()
		app.manager.Shutdown()
		return nil
	}

	srv := &http.Server{Addr: addr, Handler: newRPCHandler(local)}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Fprintf(cmd.OutOrStdout(), "serving pipeline RPC on %s\n", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		app.manager.Shutdown()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newRPCHandler builds the remote pipeline procedure surface over p. Each
// procedure is a POST to /<name> with a JSON body; this mirrors pipeline.RemoteClient's
// request/response shapes exactly, so a RemoteClient pointed at this
// listener's base URL drives the same Manager this process owns.
func newRPCHandler(p pipeline.IPipeline) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/enqueueJob", jsonHandler(func(r *http.Request, req struct {
		Library string         `json:"library"`
		Version string         `json:"version"`
		Options map[string]any `json:"options"`
	}) (any, error) {
		id, err := p.EnqueueJob(r.Context(), req.Library, req.Version, req.Options)
		if err != nil {
			return nil, err
		}
		return map[string]any{"jobId": id}, nil
	}))

	mux.HandleFunc("/enqueueJobWithStoredOptions", jsonHandler(func(r *http.Request, req struct {
		Library string `json:"library"`
		Version string `json:"version"`
	}) (any, error) {
		id, err := p.EnqueueJobWithStoredOptions(r.Context(), req.Library, req.Version)
		if err != nil {
			return nil, err
		}
		return map[string]any{"jobId": id}, nil
	}))

	mux.HandleFunc("/getJob", jsonHandler(func(r *http.Request, req struct {
		ID string `json:"id"`
	}) (any, error) {
		view, ok := p.GetJob(req.ID)
		if !ok {
			return nil, fmt.Errorf("job not found: %s", req.ID)
		}
		return view, nil
	}))

	mux.HandleFunc("/getJobs", jsonHandler(func(r *http.Request, req struct {
		Status *pipeline.JobStatus `json:"status"`
	}) (any, error) {
		return map[string]any{"jobs": p.GetJobs(req.Status)}, nil
	}))

	mux.HandleFunc("/cancelJob", jsonHandler(func(r *http.Request, req struct {
		ID string `json:"id"`
	}) (any, error) {
		err := p.CancelJob(r.Context(), req.ID)
		return map[string]any{"success": err == nil}, err
	}))

	mux.HandleFunc("/clearCompletedJobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"count": p.ClearCompletedJobs()})
	})

	return mux
}

// jsonHandler decodes the request body into T, invokes fn, and writes its
// result (or a 500 with the error message) as JSON.
func jsonHandler[T any](fn func(*http.Request, T) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		result, err := fn(r, req)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, result)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
