package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestObservedLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("sample degraded", "chain", 0)
	logger.Infof("selected calibration for %d", 13)
	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("sample degraded").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterField(logs.All()[0].Context[0]).Len(), test.ShouldEqual, 1)

	logger.SetLevel(WARN)
	logger.Info("dropped")
	logger.Warn("kept")
	test.That(t, logs.Len(), test.ShouldEqual, 3)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
}

func TestSublogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("root")
	logger.AddAppender(NewWriterAppender(&buf))
	sub := logger.Sublogger("mpnet")
	sub.Errorw("boom", "dim", 5)
	out := buf.String()
	test.That(t, strings.Contains(out, "root.mpnet"), test.ShouldBeTrue)
	test.That(t, strings.Contains(out, "ERROR"), test.ShouldBeTrue)
	test.That(t, strings.Contains(out, `"dim":5`), test.ShouldBeTrue)
	test.That(t, strings.Contains(out, "logging/impl_test.go"), test.ShouldBeTrue)
	test.That(t, sub.Sync(), test.ShouldBeNil)
}

func TestLevelFromString(t *testing.T) {
	for str, lvl := range map[string]Level{"debug": DEBUG, "INFO": INFO, "warning": WARN, "Error": ERROR} {
		parsed, err := LevelFromString(str)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, lvl)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var lvl Level
	test.That(t, lvl.UnmarshalJSON([]byte(`"warn"`)), test.ShouldBeNil)
	test.That(t, lvl, test.ShouldEqual, WARN)
	data, err := lvl.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, `"Warn"`)
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("cli", WARN, &buf)
	logger.Infow("hidden", "k", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)
	logger.Warnw("shown", "k")
	test.That(t, buf.String(), test.ShouldContainSubstring, "WARN\tcli")
	test.That(t, buf.String(), test.ShouldContainSubstring, "unpaired log key")
	test.That(t, strings.Count(buf.String(), "\n"), test.ShouldEqual, 1)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compnetx.log")
	appender := NewFileAppender(path, 1, 1)
	logger := NewBlankLogger("file")
	logger.AddAppender(appender)
	logger.Infow("written", "count", 3)
	logger.Sublogger("worker0").Debug("also written")
	test.That(t, appender.Close(), test.ShouldBeNil)

	//nolint:gosec
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "INFO\tfile")
	test.That(t, string(data), test.ShouldContainSubstring, `{"count":3}`)
	test.That(t, string(data), test.ShouldContainSubstring, "file.worker0")
	test.That(t, strings.Count(string(data), "\n"), test.ShouldEqual, 2)
}
