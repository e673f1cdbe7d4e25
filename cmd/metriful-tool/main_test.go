package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metriful-go/internal/config"
	"metriful-go/x/timex"
)

func fakeClock(t *testing.T) *timex.Fake {
	t.Helper()
	clk := timex.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	prev := newClock
	newClock = func() timex.Clock { return clk }
	t.Cleanup(func() { newClock = prev })
	return clk
}

func runTool(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestUsageErrors(t *testing.T) {
	code, _, stderr := runTool(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Commands:")

	code, _, stderr = runTool(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: bogus")

	code, _, stderr = runTool(t, "-address", "zz", "metrics")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "invalid address")

	code, _, _ = runTool(t, "-log-level", "loud", "metrics")
	assert.Equal(t, 2, code)
}

func TestMetricsCommand(t *testing.T) {
	code, stdout, _ := runTool(t, "metrics")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "temperature")
	assert.Contains(t, stdout, "0x21")
	assert.Contains(t, stdout, "combined_all")

	code, stdout, _ = runTool(t, "-json", "metrics")
	require.Equal(t, 0, code)
	var first struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines(stdout)[0]), &first))
	assert.NotEmpty(t, first.Name)
}

func TestStatusSimulated(t *testing.T) {
	fakeClock(t)
	code, stdout, stderr := runTool(t, "-simulate", "status")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "mode: standby")
	assert.Contains(t, stdout, "light interrupt: disabled")
}

func TestReadSimulated(t *testing.T) {
	clk := fakeClock(t)
	code, stdout, stderr := runTool(t, "-simulate", "read", "temperature", "pressure")
	require.Equal(t, 0, code, stderr)
	out := lines(stdout)
	require.Len(t, out, 2)
	assert.Contains(t, out[0], "temperature")
	assert.Contains(t, out[0], "21.5 °C")
	assert.Contains(t, out[1], "101325 Pa")
	assert.GreaterOrEqual(t, clk.Slept(), 550*time.Millisecond)

	code, stdout, stderr = runTool(t, "-simulate", "-json", "read", "humidity")
	require.Equal(t, 0, code, stderr)
	var s struct {
		Metric string  `json:"metric"`
		Value  float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines(stdout)[0]), &s))
	assert.Equal(t, "humidity", s.Metric)
	assert.InDelta(t, 45.2, s.Value, 1e-9)

	code, _, stderr = runTool(t, "-simulate", "read", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown metric "nope"`)
}

func TestModeSimulated(t *testing.T) {
	fakeClock(t)
	code, stdout, stderr := runTool(t, "-simulate", "mode", "cycle:100s")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "mode: cycle(100s)")

	code, _, stderr = runTool(t, "-simulate", "mode", "cycle:7s")
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)

	code, _, _ = runTool(t, "-simulate", "mode")
	assert.Equal(t, 1, code)
}

func TestWatchStrategies(t *testing.T) {
	for _, strategy := range []string{"interval", "cycle", "background"} {
		t.Run(strategy, func(t *testing.T) {
			fakeClock(t)
			code, stdout, stderr := runTool(t, "-simulate", "watch",
				"-strategy", strategy, "-interval", "2s", "-count", "3", "temperature", "combined_light")
			require.Equal(t, 0, code, stderr)
			out := lines(stdout)
			require.Len(t, out, 6)
			for i, l := range out {
				want := []string{"temperature", "combined_light"}[i%2]
				assert.Contains(t, l, want)
			}
		})
	}
}

func TestWatchRejectsUnknownStrategy(t *testing.T) {
	fakeClock(t)
	code, _, stderr := runTool(t, "-simulate", "watch", "-strategy", "sometimes", "-count", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown strategy")
}

func TestRecordThenReplay(t *testing.T) {
	fakeClock(t)
	path := filepath.Join(t.TempDir(), "run.cbor")
	code, _, stderr := runTool(t, "-simulate", "record", "-strategy", "cycle", "-count", "2", "-o", path, "temperature")
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := runTool(t, "replay", path)
	require.Equal(t, 0, code, stderr)
	out := lines(stdout)
	require.Len(t, out, 3)
	assert.Contains(t, out[0], "address 0x71 strategy cycle metrics [temperature]")
	assert.Contains(t, out[1], "temperature")
	assert.Contains(t, out[1], "21.5 °C")

	code, stdout, stderr = runTool(t, "-json", "replay", path)
	require.Equal(t, 0, code, stderr)
	assert.Len(t, lines(stdout), 3)

	code, _, _ = runTool(t, "replay", filepath.Join(t.TempDir(), "missing.cbor"))
	assert.Equal(t, 1, code)
}

func TestParseLevel(t *testing.T) {
	l, err := parseLevel("", "")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)

	l, err = parseLevel("", "DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = parseLevel("error", "debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, l)

	_, err = parseLevel("verbose", "")
	assert.Error(t, err)
}

func TestLoadConfigLayering(t *testing.T) {
	cfg, err := loadConfig(options{Address: "0x70", Bus: "/dev/i2c-3", OpenTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x70), cfg.Device.Address)
	assert.Equal(t, "/dev/i2c-3", cfg.Device.Bus)
	assert.Equal(t, 2*time.Second, cfg.Device.OpenTimeout())
	assert.Equal(t, config.Default().Read, cfg.Read)

	_, err = loadConfig(options{Address: "200"})
	assert.Error(t, err)

	_, err = loadConfig(options{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

// scripted feeds lines to shellLoop, then io.EOF.
func scripted(ls ...any) func() (string, error) {
	return func() (string, error) {
		if len(ls) == 0 {
			return "", io.EOF
		}
		next := ls[0]
		ls = ls[1:]
		if err, ok := next.(error); ok {
			return "", err
		}
		return next.(string), nil
	}
}

func TestShellLoop(t *testing.T) {
	fakeClock(t)
	var out, errOut bytes.Buffer
	e := &env{
		cfg:      config.Default(),
		out:      &out,
		errOut:   &errOut,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		simulate: true,
	}
	require.NoError(t, e.open(context.Background()))
	defer e.close()

	err := shellLoop(context.Background(), e, scripted(
		"",
		"status",
		readline.ErrInterrupt,
		`read "temperature"`,
		"frobnicate",
		"shell",
		"mode cycle:9s",
		`read "unterminated`,
		"help",
		"exit",
		"status",
	))
	require.NoError(t, err)

	sc := bufio.NewScanner(strings.NewReader(out.String()))
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	assert.Contains(t, got, "mode: standby")
	assert.Contains(t, out.String(), "21.5 °C")
	assert.Equal(t, 2, strings.Count(out.String(), "Commands:"))

	assert.Contains(t, errOut.String(), "Unknown command: frobnicate")
	assert.Contains(t, errOut.String(), "Unknown command: shell")
	assert.Equal(t, 4, strings.Count(errOut.String(), "Error:")+strings.Count(errOut.String(), "Unknown command:"))
}

func TestShellLoopEOF(t *testing.T) {
	var out bytes.Buffer
	e := &env{cfg: config.Default(), out: &out, errOut: &out, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	assert.NoError(t, shellLoop(context.Background(), e, scripted("metrics")))
	assert.Contains(t, out.String(), "combined_all")
}

func TestShellCompleter(t *testing.T) {
	pc := shellCompleter()
	var names []string
	for _, c := range pc.GetChildren() {
		names = append(names, strings.TrimSpace(string(c.GetName())))
	}
	assert.Contains(t, names, "read")
	assert.Contains(t, names, "exit")
	assert.NotContains(t, names, "shell")
}
