package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testEnv(vars map[string]string) (env, *bytes.Buffer) {
	var out bytes.Buffer
	return env{
		stdout: &out,
		stderr: &bytes.Buffer{},
		getenv: func(k string) string { return vars[k] },
	}, &out
}

func writeCSV(t *testing.T) string {
	t.Helper()
	regions := []string{"northeast", "northwest", "southeast", "southwest"}
	var b strings.Builder
	b.WriteString("age,sex,bmi,children,smoker,region,charges\n")
	for i := range 60 {
		smoker, base := "no", 4000.0
		if i%4 == 0 {
			smoker, base = "yes", 25000.0
		}
		sex := "female"
		if i%2 == 1 {
			sex = "male"
		}
		fmt.Fprintf(&b, "%d,%s,%.1f,%d,%s,%s,%.2f\n", 20+i%40, sex, 22+float64(i%9), i%3, smoker, regions[(i/2)%4], base+float64(i)*3)
	}
	path := filepath.Join(t.TempDir(), "insurance.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRun_TrainMissingDataset(t *testing.T) {
	t.Parallel()

	modelPath := filepath.Join(t.TempDir(), "model.joblib")
	e, _ := testEnv(map[string]string{"HF_REPO_ID": "org/model", "HF_CACHE_DIR": t.TempDir()})
	code := run([]string{"train", "--env-file", "", "--dataset", filepath.Join(t.TempDir(), "missing.csv"), "--model", modelPath}, e)
	require.Equal(t, ExitCode(exitCodeError), code)
	require.NoFileExists(t, modelPath)
}

func TestRun_TrainWithoutToken(t *testing.T) {
	t.Parallel()

	modelPath := filepath.Join(t.TempDir(), "model.joblib")
	e, out := testEnv(map[string]string{"HF_REPO_ID": "org/model", "HF_CACHE_DIR": t.TempDir()})
	code := run([]string{"train", "--env-file", "", "--dataset", writeCSV(t), "--model", modelPath}, e)
	require.Equal(t, ExitCode(exitCodeSuccess), code)
	require.FileExists(t, modelPath)
	require.Contains(t, out.String(), "R² score on test set:")
	require.Contains(t, out.String(), "HF_TOKEN not found. Skipping Hugging Face upload.")
}

func TestRun_MissingRepoID(t *testing.T) {
	t.Parallel()

	e, _ := testEnv(map[string]string{})
	require.Equal(t, ExitCode(exitCodeError), run([]string{"predict", "--env-file", ""}, e))
}

func TestRun_PredictRetrievalFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	e, out := testEnv(map[string]string{
		"HF_REPO_ID":   "org/model",
		"HF_ENDPOINT":  srv.URL,
		"HF_CACHE_DIR": t.TempDir(),
	})
	require.Equal(t, ExitCode(exitCodeError), run([]string{"predict", "--env-file", ""}, e))
	require.Contains(t, out.String(), "Error loading model")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	t.Parallel()

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("HF_REPO_ID=file/repo\nHF_TOKEN=from-file\n"), 0o644))
	modelPath := filepath.Join(t.TempDir(), "model.joblib")
	e, out := testEnv(map[string]string{"HF_TOKEN": "", "HF_CACHE_DIR": t.TempDir(), "ARTIFACT_BACKEND": "s3", "S3_BUCKET": "b"})

	// The file supplies the repo id; without S3 keys nothing is uploaded.
	code := run([]string{"train", "--env-file", envFile, "--dataset", writeCSV(t), "--model", modelPath}, e)
	require.Equal(t, ExitCode(exitCodeSuccess), code)
	require.Contains(t, out.String(), "S3_ACCESS_KEY_ID/S3_SECRET_ACCESS_KEY not found. Skipping S3 upload.")
}
