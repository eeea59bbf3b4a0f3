package model

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/condpredict/internal/testutil"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "score.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestRScript_Command(t *testing.T) {
	r := &RScript{Script: "/opt/cond/condRF.R", Artifact: "/opt/cond/rf17bCnd9.rdata"}
	req := Request{OutputDir: "/data/out", ParamTable: "/data/ws_cond_param.dbf"}

	cmd := r.Command(context.Background(), req)

	assert.Equal(t, []string{
		DefaultRuntime,
		"/opt/cond/condRF.R",
		"/opt/cond/rf17bCnd9.rdata",
		"/data/out",
		"/data/ws_cond_param.dbf",
	}, cmd.Args)
	assert.Equal(t, filepath.Join("/data/out", OutputFile), req.OutputPath())
}

func TestRScript_PredictWritesOutput(t *testing.T) {
	sh := requireShell(t)
	script := writeScript(t, `model="$1"; out="$2"; params="$3"
echo "scoring $params with $model"
printf 'LineOID,prdCond\n1,42.5\n' > "$out/predicted_cond.csv"
`)

	var stdout bytes.Buffer
	r := &RScript{Runtime: sh, Script: script, Artifact: "model.rdata", Stdout: &stdout, Logger: testutil.NewTestLogger(t)}
	req := Request{OutputDir: filepath.Join(t.TempDir(), "out"), ParamTable: "params.dbf"}

	require.NoError(t, r.Predict(context.Background(), req))

	data, err := os.ReadFile(req.OutputPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,42.5")
	assert.Contains(t, stdout.String(), "scoring params.dbf with model.rdata")
}

func TestRScript_NonZeroExitIsNotAnError(t *testing.T) {
	sh := requireShell(t)
	script := writeScript(t, "echo failing >&2\nexit 3\n")

	var stderr bytes.Buffer
	r := &RScript{Runtime: sh, Script: script, Stderr: &stderr, Logger: testutil.NewTestLogger(t)}
	req := Request{OutputDir: t.TempDir(), ParamTable: "params.dbf"}

	require.NoError(t, r.Predict(context.Background(), req))
	assert.Contains(t, stderr.String(), "failing")

	_, err := os.Stat(req.OutputPath())
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing was written, the joiner reports it")
}

func TestRScript_MissingRuntime(t *testing.T) {
	r := &RScript{Runtime: filepath.Join(t.TempDir(), "no-such-Rscript")}
	err := r.Predict(context.Background(), Request{OutputDir: t.TempDir()})
	assert.Error(t, err)
}

func TestRScript_RequiresOutputDir(t *testing.T) {
	r := &RScript{}
	assert.Error(t, r.Predict(context.Background(), Request{}))
}

func TestResolveNextToExecutable(t *testing.T) {
	got := ResolveNextToExecutable(DefaultScript)
	assert.Equal(t, DefaultScript, filepath.Base(got))
}
