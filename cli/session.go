package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/compnetx/config"
	"go.viam.com/compnetx/kinematics"
	"go.viam.com/compnetx/logging"
	"go.viam.com/compnetx/motionplan/tsr"
)

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 3
)

// newLogger writes to the app's error writer at the --log-level level, or at debug when --debug is set. With
// --log-file the same lines also go to a rotated file, returned so it can be closed.
func newLogger(c *cli.Context) (logging.Logger, *logging.FileAppender, error) {
	level := logging.DEBUG
	if !c.Bool(flagDebug) {
		var err error
		if level, err = logging.LevelFromString(c.String(flagLogLevel)); err != nil {
			return nil, nil, errors.Wrapf(err, "--%s", flagLogLevel)
		}
	}
	logger := logging.NewWriterLogger("compnetx", level, c.App.ErrWriter)
	var file *logging.FileAppender
	if path := c.Path(flagLogFile); path != "" {
		file = logging.NewFileAppender(path, logFileMaxSizeMB, logFileMaxBackups)
		logger.AddAppender(file)
	}
	return logger, file, nil
}

// session is a loaded config with the robot and chains built from it.
type session struct {
	cfg      *config.Config
	provider *kinematics.ModelProvider
	chains   []*tsr.Chain
	logger   logging.Logger
	logFile  *logging.FileAppender
}

func loadSession(c *cli.Context) (s *session, err error) {
	logger, logFile, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && logFile != nil {
			utils.UncheckedError(logFile.Close())
		}
	}()
	cfg, err := config.Read(c.Context, c.Path(flagConfig), logger)
	if err != nil {
		return nil, err
	}
	provider, err := cfg.BuildProvider(logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not build robot")
	}
	chains, err := cfg.BuildChains()
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, provider: provider, chains: chains, logger: logger, logFile: logFile}, nil
}

func (s *session) close() error {
	if s.logFile == nil {
		return nil
	}
	return s.logFile.Close()
}

// Record is one line of the files written by the sample and project commands. Distance is the largest
// constraint distance over the chains the record was checked against.
type Record struct {
	Kind       string    `json:"kind"`
	Chain      string    `json:"chain,omitempty"`
	Index      int       `json:"index"`
	Config     []float64 `json:"config"`
	Point      []float64 `json:"point"`
	Distance   float64   `json:"distance"`
	Success    bool      `json:"success"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func writeRecords(path string, records []Record) error {
	if path == "" {
		return nil
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			utils.UncheckedError(f.Close())
			return errors.Wrapf(err, "writing %q", path)
		}
	}
	return f.Close()
}

func readRecords(paths ...string) ([]Record, error) {
	var records []Record
	for _, path := range paths {
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			if len(scanner.Bytes()) == 0 {
				continue
			}
			var r Record
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				utils.UncheckedError(f.Close())
				return nil, errors.Wrapf(err, "%s:%d", path, line)
			}
			records = append(records, r)
		}
		err = scanner.Err()
		utils.UncheckedError(f.Close())
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}
