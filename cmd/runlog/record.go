package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/animus-labs/runlog/internal/domain"
	"github.com/animus-labs/runlog/internal/metrics"
	"github.com/animus-labs/runlog/internal/recorder"
	"github.com/animus-labs/runlog/internal/typeguard"
)

const maxEpochLine = 16 << 20

type recordFlags struct {
	configFile       string
	idFile           string
	variables        []string
	onUnknownType    string
	user             string
	createCollection bool
	metricsAddr      string
}

func (a *app) recordCommand() *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Create a run and append epochs read as NDJSON from stdin",
		Long: `Creates a run document holding the --config snapshot, writes its id to
--id-file, then appends one training record per stdin line. Each line is a
JSON object {"epoch_id": <int>, "epoch_data": {...}}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.record(cmd.Context(), f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.configFile, "config", "", "YAML or JSON configuration snapshot stored with the run")
	flags.StringVar(&f.idFile, "id-file", "", "path receiving {\"run_id\": ...}")
	flags.StringSliceVar(&f.variables, "variables", nil, "metric names to keep (default: all)")
	flags.StringVar(&f.onUnknownType, "on-unknown-type", string(typeguard.DefaultPolicy), "error, warn, ignore or coerce")
	flags.StringVar(&f.user, "user", "", "user recorded on the run (default: current user)")
	flags.BoolVar(&f.createCollection, "create-collection", false, "create the collection before inserting the run")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while recording")
	_ = cmd.MarkFlagRequired("id-file")
	return cmd
}

func (a *app) record(ctx context.Context, f recordFlags) error {
	storeCfg, err := a.storeConfig()
	if err != nil {
		return err
	}
	policy, err := typeguard.ParsePolicy(f.onUnknownType)
	if err != nil {
		return usageError{err: err}
	}
	snapshot, err := loadConfigSnapshot(f.configFile)
	if err != nil {
		return usageError{err: err}
	}

	var recMetrics *metrics.Recorder
	if f.metricsAddr != "" {
		reg := prom.NewRegistry()
		recMetrics = metrics.NewRecorder(reg)
		stopMetrics, err := a.serveMetrics(f.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	rec, err := recorder.Open(ctx, recorder.Config{
		StoreConfig:      storeCfg,
		CreateCollection: f.createCollection,
		Options: recorder.Options{
			Collection:    a.collection,
			Config:        snapshot,
			IDFile:        f.idFile,
			Variables:     f.variables,
			OnUnknownType: policy,
			User:          f.user,
			Logger:        a.logger,
			Metrics:       recMetrics,
		},
	})
	if err != nil {
		if id, ok := recorder.OrphanedRunID(err); ok {
			_, _ = fmt.Fprintln(a.out, id)
		}
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			a.logger.Warn("close recorder", "error", err)
		}
	}()
	if _, err := fmt.Fprintln(a.out, rec.RunID()); err != nil {
		return err
	}

	err = readEpochs(a.in, func(line int, epoch epochLine) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rec.AppendEpoch(ctx, epoch.EpochID, epoch.EpochData); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		return nil
	})
	a.logger.Info("recording finished", "run_id", rec.RunID(), "epochs", rec.Appended())
	return err
}

type epochLine struct {
	EpochID   int          `json:"epoch_id"`
	EpochData domain.Value `json:"epoch_data"`
}

// readEpochs decodes one epoch per non-blank line of r and passes it to fn
// with its 1-based line number. It stops at the first error.
func readEpochs(r io.Reader, fn func(line int, epoch epochLine) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEpochLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		epoch, err := decodeEpoch(raw)
		if err != nil {
			return usagef("line %d: %v", line, err)
		}
		if err := fn(line, epoch); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read epochs: %w", err)
	}
	return nil
}

func decodeEpoch(raw []byte) (epochLine, error) {
	var line struct {
		EpochID   *json.Number    `json:"epoch_id"`
		EpochData json.RawMessage `json:"epoch_data"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&line); err != nil {
		return epochLine{}, fmt.Errorf("decode epoch: %w", err)
	}
	if line.EpochID == nil {
		return epochLine{}, errors.New("epoch_id is required")
	}
	id, err := line.EpochID.Int64()
	if err != nil {
		return epochLine{}, fmt.Errorf("epoch_id must be an integer: %s", line.EpochID.String())
	}
	epoch := epochLine{EpochID: int(id)}
	if len(line.EpochData) > 0 {
		if err := json.Unmarshal(line.EpochData, &epoch.EpochData); err != nil {
			return epochLine{}, fmt.Errorf("decode epoch_data: %w", err)
		}
	}
	if k := epoch.EpochData.Kind(); k != domain.KindMapping && k != domain.KindNull {
		return epochLine{}, fmt.Errorf("epoch_data must be an object, got %s", k)
	}
	return epoch, nil
}

// loadConfigSnapshot reads a YAML or JSON mapping. An empty path yields an
// empty snapshot.
func loadConfigSnapshot(path string) (domain.Metadata, error) {
	if strings.TrimSpace(path) == "" {
		return domain.Metadata{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var snapshot map[string]any
	if err := yaml.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return domain.Metadata(snapshot), nil
}

func (a *app) serveMetrics(addr string, reg *prom.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
