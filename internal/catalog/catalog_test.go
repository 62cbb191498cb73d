package catalog

import (
	"context"
	"os/exec"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/cibox/internal/command"
	"github.com/Iron-Ham/cibox/internal/command/fakerunner"
	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/container/fakecontainer"
	"github.com/Iron-Ham/cibox/internal/errors"
	"github.com/Iron-Ham/cibox/internal/pipeline"
)

const testRoot = "/var/lib/lxc/test/rootfs"

type fixture struct {
	cat    *Catalog
	fs     afero.Fs
	runner *fakerunner.Runner
	c      *fakecontainer.Container
	exec   *pipeline.Executor
}

func newFixture(t *testing.T, s Settings) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	runner := fakerunner.New()
	c := fakecontainer.NewExisting("test", container.StateRunning)
	c.Root = testRoot
	if s.DBPassword == "" {
		s.DBPassword = "secret"
	}
	return &fixture{
		cat:    New(s, WithFs(fs), WithRunner(runner)),
		fs:     fs,
		runner: runner,
		c:      c,
		exec:   pipeline.NewExecutor(),
	}
}

// gitAfterProvision scripts a container where git only works once the
// provision step installing it has run.
func gitAfterProvision(c *fakecontainer.Container) {
	installed := false
	c.RunFunc = func(argv []string) (int, error) {
		if slices.Contains(argv, "mongodb-server") {
			installed = true
		}
		if argv[0] == "git" && len(argv) > 1 && argv[1] == "--version" && !installed {
			return 127, nil
		}
		return 0, nil
	}
}

func countRuns(c *fakecontainer.Container, argv ...string) int {
	n := 0
	for _, r := range c.Runs() {
		if slices.Equal(r, argv) {
			n++
		}
	}
	return n
}

func TestCatalog_Names(t *testing.T) {
	f := newFixture(t, Settings{})
	want := []string{CloneBackend, Provision, RunTests, SetupBackend}
	if got := f.cat.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if _, err := f.cat.Get("deploy"); !errors.Is(err, errors.ErrUnknownPipeline) {
		t.Errorf("Get(deploy) err = %v, want ErrUnknownPipeline", err)
	}
}

func TestProvision_Steps(t *testing.T) {
	f := newFixture(t, Settings{})
	if err := afero.WriteFile(f.fs, testRoot+MongoConfigPath, []byte("bind_ip = 127.0.0.1"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := f.cat.Run(context.Background(), f.c, f.exec, Provision)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || len(results[0].Steps) != 14 {
		t.Fatalf("results = %+v, want one pipeline of 14 steps", results)
	}
	if got := f.c.Count("run"); got != 13 {
		t.Errorf("in-container runs = %d, want 13", got)
	}

	runs := f.c.Runs()
	if !slices.Equal(runs[0], []string{"apt-get", "update"}) {
		t.Errorf("first run = %v", runs[0])
	}
	if !slices.Equal(runs[6], []string{"locale-gen", "it_IT.UTF-8"}) {
		t.Errorf("locale run = %v", runs[6])
	}
	if !slices.Equal(runs[12], []string{"service", "mongodb", "start"}) {
		t.Errorf("last run = %v", runs[12])
	}
	if results[0].Steps[12].Label != "enable mongodb smallfiles" {
		t.Errorf("step 13 = %q", results[0].Steps[12].Label)
	}

	data, err := afero.ReadFile(f.fs, testRoot+MongoConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "bind_ip = 127.0.0.1\nsmallfiles = true\n" {
		t.Errorf("mongodb.conf = %q", data)
	}
}

func TestCloneBackend_MissingGitURL(t *testing.T) {
	f := newFixture(t, Settings{})

	results, err := f.cat.Run(context.Background(), f.c, f.exec, CloneBackend)
	if !errors.Is(err, errors.ErrMissingConfiguration) {
		t.Fatalf("err = %v, want ErrMissingConfiguration", err)
	}
	var mce *errors.MissingConfigError
	if !errors.As(err, &mce) || mce.Key != "GIT_URL" {
		t.Errorf("err = %v, want MissingConfigError for GIT_URL", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want none", len(results))
	}
	if calls := f.c.Calls(); len(calls) != 0 {
		t.Errorf("container calls = %v, want none", calls)
	}
}

func TestCloneBackend_ProvisionsWhenGitMissing(t *testing.T) {
	f := newFixture(t, Settings{GitURL: "https://u:p@example.com/backend.git"})
	gitAfterProvision(f.c)
	if err := afero.WriteFile(f.fs, "/tmp/.secrets/config_local.json", []byte(`{"k":"v"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	results, err := f.cat.Run(context.Background(), f.c, f.exec, CloneBackend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != 2 || results[0].Pipeline != Provision || results[1].Pipeline != CloneBackend {
		t.Fatalf("pipelines = %v, want [provision clone_backend]", pipelineNames(results))
	}
	if n := countRuns(f.c, "apt-get", "update"); n != 1 {
		t.Errorf("provision ran %d times, want 1", n)
	}

	runs := f.c.Runs()
	clone := []string{"git", "clone", "-b", "develop", "https://u:p@example.com/backend.git", "/root/quokky_backend"}
	if !slices.Equal(runs[len(runs)-1], clone) {
		t.Errorf("last run = %v, want %v", runs[len(runs)-1], clone)
	}

	data, err := afero.ReadFile(f.fs, testRoot+"/root/quokky_backend/.secrets/config_local.json")
	if err != nil {
		t.Fatalf("secrets not copied: %v", err)
	}
	if string(data) != `{"k":"v"}` {
		t.Errorf("secrets = %q", data)
	}
}

func TestCloneBackend_SkipsProvisionWhenGitPresent(t *testing.T) {
	f := newFixture(t, Settings{GitURL: "https://example.com/backend.git", Branch: "main"})
	_ = f.fs.MkdirAll("/tmp/.secrets", 0o700)

	results, err := f.cat.Run(context.Background(), f.c, f.exec, CloneBackend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := pipelineNames(results); !slices.Equal(got, []string{CloneBackend}) {
		t.Errorf("pipelines = %v, want [clone_backend]", got)
	}
	if n := countRuns(f.c, "apt-get", "update"); n != 0 {
		t.Errorf("provision ran %d times, want 0", n)
	}
	if n := countRuns(f.c, "git", "--version"); n != 1 {
		t.Errorf("git check ran %d times, want 1", n)
	}
}

func TestCloneBackend_PreconditionStillUnmet(t *testing.T) {
	f := newFixture(t, Settings{GitURL: "https://example.com/backend.git"})
	f.c.RunFunc = func(argv []string) (int, error) {
		if argv[0] == "git" {
			return 127, nil
		}
		return 0, nil
	}

	results, err := f.cat.Run(context.Background(), f.c, f.exec, CloneBackend)
	if !errors.Is(err, errors.ErrPreconditionUnmet) {
		t.Fatalf("err = %v, want ErrPreconditionUnmet", err)
	}
	if got := pipelineNames(results); !slices.Equal(got, []string{Provision}) {
		t.Errorf("pipelines = %v, want only provision", got)
	}
	if n := countRuns(f.c, "rm", "-rf", "/root/quokky_backend"); n != 0 {
		t.Error("clone steps ran although git is missing")
	}
}

func TestCloneBackend_AbortsAfterFailedClone(t *testing.T) {
	f := newFixture(t, Settings{GitURL: "https://example.com/backend.git"})
	f.c.RunFunc = func(argv []string) (int, error) {
		if argv[0] == "git" && argv[1] == "clone" {
			return 128, nil
		}
		return 0, nil
	}

	results, err := f.cat.Run(context.Background(), f.c, f.exec, CloneBackend)
	if !errors.Is(err, errors.ErrStepFailure) {
		t.Fatalf("err = %v, want ErrStepFailure", err)
	}
	steps := results[0].Steps
	if steps[1].Outcome != pipeline.OutcomeFailure || steps[2].Outcome != pipeline.OutcomeSkipped {
		t.Errorf("outcomes = %s, %s; want failed, skipped", steps[1].Outcome, steps[2].Outcome)
	}
}

func TestSetupBackend_Steps(t *testing.T) {
	f := newFixture(t, Settings{})

	results, err := f.cat.Run(context.Background(), f.c, f.exec, SetupBackend)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results[0].Steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(results[0].Steps))
	}

	runs := f.c.Runs()
	wantSQL := []string{
		"drop database quokky",
		"drop user django",
		"create user django with createdb password 'secret'",
		"create database quokky with ENCODING 'UTF-8' LC_COLLATE='it_IT.UTF-8' LC_CTYPE='it_IT.UTF-8' template=template0 owner=django;",
	}
	for i, sql := range wantSQL {
		want := []string{"sudo", "-u", "postgres", "psql", "-c", sql}
		if !slices.Equal(runs[i], want) {
			t.Errorf("run %d = %v, want %v", i, runs[i], want)
		}
	}

	cmds := f.runner.Commands()
	if len(cmds) != 1 {
		t.Fatalf("local commands = %d, want 1", len(cmds))
	}
	if !slices.Equal(cmds[0].Args, []string{"pip", "install", "-r", "requirements/dev.txt"}) {
		t.Errorf("pip args = %v", cmds[0].Args)
	}
	if cmds[0].Dir != testRoot+"/root/quokky_backend" {
		t.Errorf("pip dir = %q", cmds[0].Dir)
	}
}

func TestSettings_GeneratedPassword(t *testing.T) {
	cat := New(Settings{})
	pw := cat.Settings().DBPassword
	if len(pw) != 32 || strings.Contains(pw, "-") {
		t.Errorf("generated password = %q, want 32 hex chars", pw)
	}
	if other := New(Settings{}).Settings().DBPassword; other == pw {
		t.Error("two catalogs generated the same password")
	}
}

func TestRunTests_ReportsEachLocalCommand(t *testing.T) {
	f := newFixture(t, Settings{})
	f.runner.WhenRunning(fakerunner.Spec{Path: "fab", Args: []string{"check"}}, func(*exec.Cmd) ([]byte, error) {
		return nil, &command.ExitError{Code: 2}
	})

	results, err := f.cat.Run(context.Background(), f.c, f.exec, RunTests)
	if !errors.Is(err, errors.ErrStepFailure) {
		t.Fatalf("err = %v, want ErrStepFailure", err)
	}

	steps := results[0].Steps
	if steps[0].Outcome != pipeline.OutcomeFailure || steps[0].ExitCode != 2 {
		t.Errorf("static check = %+v, want failed with exit 2", steps[0])
	}
	for _, s := range steps[1:] {
		if s.Outcome != pipeline.OutcomeSuccess {
			t.Errorf("%s = %s, want ok", s.Label, s.Outcome)
		}
	}

	var got [][]string
	for _, cmd := range f.runner.Commands() {
		got = append(got, cmd.Args)
		if cmd.Dir != testRoot+"/root/quokky_backend" {
			t.Errorf("%v ran in %q", cmd.Args, cmd.Dir)
		}
	}
	want := [][]string{{"fab", "check"}, {"fab", "test:coverage=1"}, {"fab", "coverage_report"}}
	if !slices.EqualFunc(got, want, slices.Equal[[]string]) {
		t.Errorf("commands = %v, want %v", got, want)
	}
	if f.c.Count("run") != 0 {
		t.Errorf("run_tests ran %d commands in the container", f.c.Count("run"))
	}
}

func TestResolve_Cycle(t *testing.T) {
	f := newFixture(t, Settings{})
	f.cat.Register(&Entry{Name: "a", Requires: []Dependency{{Pipeline: "b"}}, Build: emptyPipeline("a")})
	f.cat.Register(&Entry{Name: "b", Requires: []Dependency{{Pipeline: "a"}}, Build: emptyPipeline("b")})

	if err := f.cat.Validate("a"); !errors.Is(err, errors.ErrDependencyCycle) {
		t.Errorf("Validate err = %v, want ErrDependencyCycle", err)
	}
	if _, err := f.cat.Resolve(context.Background(), f.c, "a"); !errors.Is(err, errors.ErrDependencyCycle) {
		t.Errorf("Resolve err = %v, want ErrDependencyCycle", err)
	}
}

func TestResolve_DiamondRunsSharedDependencyOnce(t *testing.T) {
	f := newFixture(t, Settings{})
	f.cat.Register(&Entry{Name: "base", Build: emptyPipeline("base")})
	f.cat.Register(&Entry{Name: "left", Requires: []Dependency{{Pipeline: "base"}}, Build: emptyPipeline("left")})
	f.cat.Register(&Entry{Name: "right", Requires: []Dependency{{Pipeline: "base"}}, Build: emptyPipeline("right")})
	f.cat.Register(&Entry{
		Name:     "top",
		Requires: []Dependency{{Pipeline: "left"}, {Pipeline: "right"}},
		Build:    emptyPipeline("top"),
	})

	stages, err := f.cat.Resolve(context.Background(), f.c, "top")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range stages {
		got = append(got, s.Name)
	}
	if want := []string{"base", "left", "right", "top"}; !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestValidate_UnknownDependency(t *testing.T) {
	f := newFixture(t, Settings{})
	f.cat.Register(&Entry{Name: "x", Requires: []Dependency{{Pipeline: "missing"}}, Build: emptyPipeline("x")})
	if err := f.cat.Validate("x"); !errors.Is(err, errors.ErrUnknownPipeline) {
		t.Errorf("err = %v, want ErrUnknownPipeline", err)
	}
}

func emptyPipeline(name string) func() pipeline.Pipeline {
	return func() pipeline.Pipeline { return pipeline.Pipeline{Name: name} }
}

func pipelineNames(results []pipeline.Result) []string {
	var names []string
	for _, r := range results {
		names = append(names, r.Pipeline)
	}
	return names
}
