package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Abhracodec/osint-recon/config"
	"github.com/Abhracodec/osint-recon/internal/bootstrap"
	"github.com/Abhracodec/osint-recon/internal/domain/model"
	"github.com/Abhracodec/osint-recon/internal/service"
)

// requestFlags builds a JobRequest from either a JSON file or individual flags.
type requestFlags struct {
	file        string
	target      string
	targetType  string
	modules     []string
	rateProfile string
	consent     string
	active      bool
	metadata    map[string]string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "", `JSON job request file ("-" reads stdin)`)
	fl.StringVar(&f.target, "target", "", "target to investigate")
	fl.StringVar(&f.targetType, "type", string(model.TargetTypeDomain), "target type: domain, email, ip or person")
	fl.StringSliceVarP(&f.modules, "module", "m", nil, "module to run, in order (repeatable)")
	fl.StringVar(&f.rateProfile, "rate", "", "rate profile: low, medium or high")
	fl.StringVar(&f.consent, "consent", "", "typed consent attestation")
	fl.BoolVar(&f.active, "active", false, "allow active modules")
	fl.StringToStringVar(&f.metadata, "meta", nil, "metadata key=value pairs")
}

func (f *requestFlags) build(stdin io.Reader) (model.JobRequest, error) {
	if f.file != "" {
		return f.decodeFile(stdin)
	}
	if strings.TrimSpace(f.target) == "" {
		return model.JobRequest{}, errors.New("either --file or --target is required")
	}
	req := model.JobRequest{
		Target:              f.target,
		TargetType:          model.TargetType(f.targetType),
		Modules:             f.modules,
		RateProfile:         model.RateProfile(f.rateProfile),
		EnableActiveModules: f.active,
		Metadata:            f.metadata,
	}
	if f.consent != "" {
		req.Consent = &model.Consent{
			Type:      model.ConsentTypeTyped,
			Value:     f.consent,
			Timestamp: time.Now().UTC(),
		}
	}
	return req, nil
}

func (f *requestFlags) decodeFile(stdin io.Reader) (model.JobRequest, error) {
	r := stdin
	if f.file != "-" {
		fh, err := os.Open(f.file)
		if err != nil {
			return model.JobRequest{}, fmt.Errorf("open request file: %w", err)
		}
		defer fh.Close()
		r = fh
	}
	req, err := model.DecodeJobRequest(r)
	if err != nil {
		return model.JobRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeProjected prints v, narrowed by a JMESPath query when one is given.
func writeProjected(w io.Writer, projector *service.ResultProjector, v any, query string) error {
	if strings.TrimSpace(query) == "" {
		return writeJSON(w, v)
	}
	out, err := projector.Project(v, query)
	if err != nil {
		return err
	}
	return writeJSON(w, out)
}

// withServices opens the engine for the duration of fn.
func (a *app) withServices(ctx context.Context, fn func(*bootstrap.ServiceContainer) error) error {
	svc, closeAll, err := a.openServices(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	return fn(svc)
}

// warnMemoryBackend flags commands that cannot see another process's jobs.
func (a *app) warnMemoryBackend(cmd *cobra.Command) {
	if a.cfg.Backend == config.BackendMemory {
		a.logger.Warn("memory backend keeps jobs in this process only; use 'scan' or BACKEND=redis",
			"command", cmd.Name())
	}
}

func newSubmitCmd(a *app) *cobra.Command {
	var (
		req   requestFlags
		wait  bool
		poll  time.Duration
		query string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a reconnaissance job and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.warnMemoryBackend(cmd)
			jr, err := req.build(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(svc *bootstrap.ServiceContainer) error {
				id, err := svc.Orchestrator.Submit(cmd.Context(), jr)
				if err != nil {
					return err
				}
				if !wait {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
					return err
				}
				return waitAndPrint(cmd, svc, id, poll, query)
			})
		},
	}
	req.register(cmd)
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the job finishes and print its record")
	cmd.Flags().DurationVar(&poll, "poll", service.DefaultWaitPoll, "status poll interval while waiting")
	cmd.Flags().StringVarP(&query, "query", "q", "", "JMESPath expression applied to the printed document")
	return cmd
}

// waitAndPrint blocks until id is terminal, then prints the result when the
// job completed or the record otherwise.
func waitAndPrint(cmd *cobra.Command, svc *bootstrap.ServiceContainer, id string, poll time.Duration, query string) error {
	rec, err := svc.Orchestrator.Wait(cmd.Context(), id, poll)
	if err != nil {
		return err
	}
	var doc any = rec
	if rec.Status == model.JobStatusCompleted {
		doc = model.ResultFromRecord(rec)
	}
	if err := writeProjected(cmd.OutOrStdout(), svc.Projector, doc, query); err != nil {
		return err
	}
	if rec.Status == model.JobStatusFailed && rec.Error != nil {
		return fmt.Errorf("job %s failed: %s", id, rec.Error.Message)
	}
	return nil
}

func newStatusCmd(a *app) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the current record of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.warnMemoryBackend(cmd)
			return a.withServices(cmd.Context(), func(svc *bootstrap.ServiceContainer) error {
				rec, err := svc.Orchestrator.GetStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeProjected(cmd.OutOrStdout(), svc.Projector, rec, query)
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "JMESPath expression applied to the record")
	return cmd
}

func newResultCmd(a *app) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Print the findings of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.warnMemoryBackend(cmd)
			return a.withServices(cmd.Context(), func(svc *bootstrap.ServiceContainer) error {
				res, err := svc.Orchestrator.GetResult(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeProjected(cmd.OutOrStdout(), svc.Projector, res, query)
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", `JMESPath expression, e.g. "findings[].findings[?severity=='High'].title"`)
	return cmd
}

func newCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.warnMemoryBackend(cmd)
			return a.withServices(cmd.Context(), func(svc *bootstrap.ServiceContainer) error {
				ok, err := svc.Orchestrator.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s already finished\n", args[0])
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s cancellation requested\n", args[0])
				return err
			})
		},
	}
}

func newQueueStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-stats",
		Short: "Print queue depth by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(svc *bootstrap.ServiceContainer) error {
				stats, err := svc.Orchestrator.QueueStats(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

// newScanCmd submits a job and runs an in-process worker until it finishes.
// It works with either backend and needs no separately running worker.
func newScanCmd(a *app) *cobra.Command {
	var (
		req   requestFlags
		query string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Submit a job and run it to completion in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jr, err := req.build(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(svc *bootstrap.ServiceContainer) error {
				return runScan(cmd, a, svc, jr, query)
			})
		},
	}
	req.register(cmd)
	cmd.Flags().StringVarP(&query, "query", "q", "", "JMESPath expression applied to the printed document")
	return cmd
}

func runScan(
	cmd *cobra.Command,
	a *app,
	svc *bootstrap.ServiceContainer,
	jr model.JobRequest,
	query string,
) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- bootstrap.RunWorker(ctx, bootstrap.WorkerConfig{
			Store:    svc.Store,
			Queue:    svc.Queue,
			Modules:  svc.Modules,
			Config:   a.cfg.Worker,
			Logger:   a.logger,
			Audit:    svc.Audit,
			Metrics:  svc.Observability.Sink,
			Notifier: svc.Notifier,
		})
	}()

	id, err := svc.Orchestrator.Submit(ctx, jr)
	if err != nil {
		cancel()
		<-workerDone
		return err
	}

	waitCmd := *cmd
	waitCmd.SetContext(ctx)
	printErr := waitAndPrint(&waitCmd, svc, id, 100*time.Millisecond, query)
	cancel()
	if werr := <-workerDone; werr != nil && printErr == nil {
		return werr
	}
	return printErr
}
