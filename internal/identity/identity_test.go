package identity

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlsantos/devc/internal/runtime"
)

type fakeRuntime struct {
	byID map[string]*runtime.ContainerInfo
	list []runtime.ContainerInfo
	err  error
}

func (f *fakeRuntime) InspectContainer(_ context.Context, id string) (*runtime.ContainerInfo, error) {
	if info, ok := f.byID[id]; ok {
		return info, nil
	}
	return nil, &runtime.ErrContainerNotFound{ID: id}
}

func (f *fakeRuntime) ListContainers(_ context.Context, labelSelector map[string]string) ([]runtime.ContainerInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []runtime.ContainerInfo
	for _, c := range f.list {
		matches := true
		for k, v := range labelSelector {
			if c.Labels[k] != v {
				matches = false
				break
			}
		}
		if matches {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRuntime) CreateContainer(context.Context, runtime.CreateSpec) (string, error) {
	return "", nil
}
func (f *fakeRuntime) StartContainer(context.Context, string) error  { return nil }
func (f *fakeRuntime) StopContainer(context.Context, string) error   { return nil }
func (f *fakeRuntime) RemoveContainer(context.Context, string) error { return nil }
func (f *fakeRuntime) Exec(context.Context, runtime.ExecSpec) (runtime.ExecResult, error) {
	return runtime.ExecResult{}, nil
}
func (f *fakeRuntime) Build(context.Context, runtime.BuildSpec, io.Writer) error { return nil }
func (f *fakeRuntime) Pull(context.Context, string, io.Writer) error             { return nil }
func (f *fakeRuntime) ComposeUp(context.Context, string, []string, []string) error {
	return nil
}
func (f *fakeRuntime) ComposeDown(context.Context, string, []string) error { return nil }

var _ runtime.Runtime = (*stubRuntime)(nil)

type stubRuntime struct{ fakeRuntime }

func TestDevcontainerIDNoLabelsIsDeterministic(t *testing.T) {
	a := DevcontainerID("/workspace/foo", nil)
	b := DevcontainerID("/workspace/foo", nil)
	c := DevcontainerID("/workspace/bar", nil)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 12)
}

func TestDevcontainerIDLabelsOrderIndependent(t *testing.T) {
	id1 := DevcontainerID("ignored", map[string]string{"a": "1", "b": "2"})
	id2 := DevcontainerID("ignored", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, id1, id2)
}

func TestWorkspaceHashAndConfigHashAreEightHexChars(t *testing.T) {
	assert.Len(t, WorkspaceHash("/some/path"), 8)
	assert.Len(t, ConfigHash([]byte(`{}`)), 8)
}

func TestLabelsOmitsNameWhenEmpty(t *testing.T) {
	labels := Labels("wh", "ch", "")
	_, ok := labels["devcontainer.name"]
	assert.False(t, ok)
	assert.Equal(t, "wh", labels["devcontainer.workspaceHash"])
}

func TestSelectorValidateRejectsEmpty(t *testing.T) {
	err := ContainerSelector{}.validate()
	assert.ErrorIs(t, err, ErrMissingSelector)
}

func TestResolveContainerByID(t *testing.T) {
	rt := &stubRuntime{fakeRuntime{byID: map[string]*runtime.ContainerInfo{
		"abc": {ID: "abc", State: runtime.StateRunning},
	}}}
	info, err := ResolveContainer(context.Background(), rt, ContainerSelector{ContainerID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", info.ID)
}

func TestResolveContainerByLabelsSingleMatch(t *testing.T) {
	rt := &stubRuntime{fakeRuntime{
		list: []runtime.ContainerInfo{{ID: "xyz", Labels: map[string]string{"devcontainer.workspaceHash": "wh"}}},
		byID: map[string]*runtime.ContainerInfo{"xyz": {ID: "xyz"}},
	}}
	info, err := ResolveContainer(context.Background(), rt, ContainerSelector{Labels: map[string]string{"devcontainer.workspaceHash": "wh"}})
	require.NoError(t, err)
	assert.Equal(t, "xyz", info.ID)
}

func TestResolveContainerByLabelsAmbiguous(t *testing.T) {
	rt := &stubRuntime{fakeRuntime{
		list: []runtime.ContainerInfo{
			{ID: "one", Labels: map[string]string{"devcontainer.workspaceHash": "wh"}},
			{ID: "two", Labels: map[string]string{"devcontainer.workspaceHash": "wh"}},
		},
	}}
	_, err := ResolveContainer(context.Background(), rt, ContainerSelector{Labels: map[string]string{"devcontainer.workspaceHash": "wh"}})
	var ambiguous *runtime.ErrAmbiguousSelection
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Matches, 2)
}

func TestResolveContainerWorkspaceOnlyIsUnsupported(t *testing.T) {
	rt := &stubRuntime{}
	_, err := ResolveContainer(context.Background(), rt, ContainerSelector{WorkspaceFolder: "/ws"})
	var unsupported *ErrWorkspaceDiscoveryUnsupported
	require.ErrorAs(t, err, &unsupported)
}
