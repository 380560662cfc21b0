package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/arkforge/arkforge/pkg/engine"
)

// memStore is a map-backed config store standing in for the persisted one.
type memStore struct {
	docs map[string]map[string]interface{}
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]map[string]interface{})}
}

func (s *memStore) Load(id string, schema map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		merged[k] = v
	}
	for k, v := range s.docs[id] {
		merged[k] = v
	}
	return merged
}

func (s *memStore) Save(id string, doc map[string]interface{}) bool {
	if doc == nil {
		return false
	}
	s.docs[id] = doc
	return true
}

func (s *memStore) Delete(id string) bool { delete(s.docs, id); return true }
func (s *memStore) Exists(id string) bool { _, ok := s.docs[id]; return ok }
func (s *memStore) ListEntities() []string {
	var ids []string
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids
}

func testContext(t *testing.T) *engine.Context {
	t.Helper()
	return &engine.Context{
		WorkspaceDir: t.TempDir(),
		Config:       newMemStore(),
	}
}

func TestPyInstallerBuildCommandDefaults(t *testing.T) {
	e := engine.NewPyInstallerEngine()
	env := testContext(t)

	argv, err := e.BuildCommand(context.Background(), env, "main.py")
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}

	if argv[0] != "pyinstaller" {
		t.Errorf("program = %q, want pyinstaller", argv[0])
	}
	joined := strings.Join(argv, " ")
	for _, want := range []string{"--onefile", "--noconfirm", "--clean", "--distpath=dist", "main.py"} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q: %v", want, argv)
		}
	}
	if strings.Contains(joined, "--windowed") {
		t.Errorf("windowed should be off by default: %v", argv)
	}
	if argv[len(argv)-1] != "main.py" {
		t.Errorf("entry file must come last: %v", argv)
	}
}

func TestPyInstallerBuildCommandPersistedOverrides(t *testing.T) {
	e := engine.NewPyInstallerEngine()
	env := testContext(t)
	env.Config.Save("pyinstaller", map[string]interface{}{
		"onefile":        false,
		"windowed":       true,
		"name":           "myapp",
		"exclude_module": []string{"tkinter", "numpy"},
	})

	argv, err := e.BuildCommand(context.Background(), env, "app.py")
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}

	joined := strings.Join(argv, " ")
	if strings.Contains(joined, "--onefile") {
		t.Errorf("persisted onefile=false ignored: %v", argv)
	}
	for _, want := range []string{"--windowed", "--name=myapp", "--exclude-module=tkinter", "--exclude-module=numpy"} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q: %v", want, argv)
		}
	}
}

func TestPyInstallerBuildCommandRequiresFile(t *testing.T) {
	e := engine.NewPyInstallerEngine()
	if _, err := e.BuildCommand(context.Background(), testContext(t), ""); err == nil {
		t.Error("expected error for missing entry file")
	}
}

func TestNuitkaBuildCommand(t *testing.T) {
	e := engine.NewNuitkaEngine()
	env := testContext(t)
	env.Config.Save("nuitka", map[string]interface{}{
		"onefile":        true,
		"enable_plugins": []string{"pyside6"},
		"jobs":           4,
	})

	argv, err := e.BuildCommand(context.Background(), env, "main.py")
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}

	if argv[0] != "python3" || argv[1] != "-m" || argv[2] != "nuitka" {
		t.Errorf("nuitka must run as a python module: %v", argv[:3])
	}
	joined := strings.Join(argv, " ")
	for _, want := range []string{"--standalone", "--onefile", "--enable-plugin=pyside6", "--jobs=4", "--output-dir=dist-nuitka"} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q: %v", want, argv)
		}
	}
}

func TestCxFreezeBuildCommand(t *testing.T) {
	e := engine.NewCxFreezeEngine()
	env := testContext(t)

	argv, err := e.BuildCommand(context.Background(), env, "main.py")
	if err != nil {
		t.Fatalf("BuildCommand failed: %v", err)
	}

	joined := strings.Join(argv, " ")
	for _, want := range []string{"cxfreeze", "main.py", "--target-dir=dist-cx", "--silent"} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv missing %q: %v", want, argv)
		}
	}
}

func TestDescriptors(t *testing.T) {
	engines := []engine.Engine{
		engine.NewPyInstallerEngine(),
		engine.NewNuitkaEngine(),
		engine.NewCxFreezeEngine(),
	}
	seen := make(map[string]bool)
	for _, e := range engines {
		d := e.Descriptor()
		if d.ID == "" || d.Version == "" || d.RequiredCoreVersion == "" {
			t.Errorf("incomplete descriptor: %+v", d)
		}
		if seen[d.ID] {
			t.Errorf("duplicate engine id %q", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestBaseHooksAreNoOps(t *testing.T) {
	b := &engine.Base{}
	env := testContext(t)

	if !b.Preflight(context.Background(), env, "x.py") {
		t.Error("default preflight should allow the build")
	}
	if b.OutputDirectory(env) != "" {
		t.Error("default output directory should be empty")
	}
	if b.Environment(env, "x.py") != nil {
		t.Error("default environment should be nil")
	}
	// Must not panic
	b.OnSuccess(env, "x.py")
	b.OnFailure(env, "x.py", nil)
}
