package artifacts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/edgerun/internal/util/retry"
)

const sensorRecipe = `
RecipeFormatVersion: "2020-01-25"
ComponentName: "{{COMPONENT_NAME}}"
ComponentVersion: "{{COMPONENT_VERSION}}"
ComponentDescription: Simulated temperature sensor
ComponentPublisher: edgerun
ComponentConfiguration:
  DefaultConfiguration:
    interval: 5
Manifests:
  - Platform:
      os: linux
    Lifecycle:
      Run: "python3 -u {artifacts:path}/sensor.py"
    Artifacts:
      - URI: "s3://{{BUCKET_NAME}}/{{COMPONENT_NAME}}/{{COMPONENT_VERSION}}/sensor.py"
        Permission:
          Execute: OWNER
`

func sensorBundle(t *testing.T) Bundle {
	t.Helper()
	r, err := ParseRecipe([]byte(sensorRecipe))
	require.NoError(t, err)
	return Bundle{
		Name:    "com.example.Sensor",
		Version: "1.0.0",
		Files:   []string{"/src/sensor/sensor.py"},
		Recipe:  r,
	}
}

func TestRender_AssignsFields(t *testing.T) {
	b := sensorBundle(t)

	r, data, err := Render(b.Recipe, b, "edgerun-gg-artifacts")
	require.NoError(t, err)

	assert.Equal(t, "com.example.Sensor", r.ComponentName)
	assert.Equal(t, "1.0.0", r.ComponentVersion)
	require.Len(t, r.Manifests, 1)
	require.Len(t, r.Manifests[0].Artifacts, 1)
	assert.Equal(t, "s3://edgerun-gg-artifacts/com.example.Sensor/1.0.0/sensor.py", r.Manifests[0].Artifacts[0].URI)
	assert.Equal(t, "OWNER", r.Manifests[0].Artifacts[0].Permission.Execute)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "com.example.Sensor", decoded["ComponentName"])
	assert.NotContains(t, string(data), "{{")

	// The template is untouched.
	assert.Equal(t, "{{COMPONENT_NAME}}", b.Recipe.ComponentName)
}

func TestRender_AddsBundleFilesToEmptyManifest(t *testing.T) {
	b := Bundle{
		Name:    "com.example.Bridge",
		Version: "2.0.0",
		Files:   []string{"bridge.py", "requirements.txt"},
		Recipe:  &Recipe{ComponentName: "x", Lifecycle: map[string]any{"Run": "python3 bridge.py"}},
	}

	r, _, err := Render(b.Recipe, b, "bucket")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-25", r.RecipeFormatVersion)
	require.Len(t, r.Manifests, 1)
	assert.Equal(t, []Artifact{
		{URI: "s3://bucket/com.example.Bridge/2.0.0/bridge.py"},
		{URI: "s3://bucket/com.example.Bridge/2.0.0/requirements.txt"},
	}, r.Manifests[0].Artifacts)
}

func TestRender_LeftoverTokenIsFatal(t *testing.T) {
	b := sensorBundle(t)
	b.Recipe.Manifests[0].Lifecycle["Run"] = "aws s3 cp s3://{{BUCKET_NAME}}/extra ."

	_, _, err := Render(b.Recipe, b, "bucket")
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	var tmplErr *TemplateError
	require.True(t, errors.As(err, &tmplErr))
	assert.Contains(t, tmplErr.Reason, TokenBucketName)
}

func TestRender_UnknownArtifactIsFatal(t *testing.T) {
	b := sensorBundle(t)
	b.Files = []string{"other.py"}

	_, _, err := Render(b.Recipe, b, "bucket")
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Contains(t, err.Error(), `"sensor.py" is not part of the bundle`)
}

func TestRender_NilRecipe(t *testing.T) {
	_, _, err := Render(nil, Bundle{Name: "x"}, "bucket")
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
}

func TestParseRecipe_RejectsUnknownFields(t *testing.T) {
	_, err := ParseRecipe([]byte("ComponentName: x\nManifest: []\n"))
	require.Error(t, err)
}

func TestLoadRecipe_JSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "recipe.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"ComponentName":"a","Manifests":[{"Platform":{"os":"linux"}}]}`), 0o600))

	r, err := LoadRecipe(p)
	require.NoError(t, err)
	assert.Equal(t, "a", r.ComponentName)
	assert.Equal(t, "linux", r.Manifests[0].Platform["os"])

	_, err = LoadRecipe(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestArtifactURI(t *testing.T) {
	assert.Equal(t, "s3://b/n/1.2.3/f.zip", ArtifactURI("b", "n", "1.2.3", "/local/dir/f.zip"))
	assert.Equal(t, "n/1.2.3/", ObjectPrefix("n", "1.2.3"))
}
