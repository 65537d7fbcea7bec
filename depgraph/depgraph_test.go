package depgraph

import "testing"

type fakeTool struct {
	name string
	deps []string
}

func (f fakeTool) ToolName() string   { return f.name }
func (f fakeTool) DependsOn() []string { return f.deps }

func TestNoDependenciesAreLevelZero(t *testing.T) {
	configs := []fakeTool{{name: "a"}, {name: "b"}}
	res := Resolve(configs)
	for _, name := range []string{"a", "b"} {
		if res.LevelByName[name] != 0 {
			t.Errorf("expected %s at level 0, got %d", name, res.LevelByName[name])
		}
	}
	if len(res.Levels) != 1 || len(res.Levels[0]) != 2 {
		t.Fatalf("unexpected levels: %+v", res.Levels)
	}
}

func TestLinearChain(t *testing.T) {
	configs := []fakeTool{
		{name: "db"},
		{name: "api", deps: []string{"db"}},
		{name: "web", deps: []string{"api"}},
	}
	res := Resolve(configs)
	if res.LevelByName["db"] != 0 || res.LevelByName["api"] != 1 || res.LevelByName["web"] != 2 {
		t.Fatalf("unexpected levels: %+v", res.LevelByName)
	}
	if len(res.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(res.Levels))
	}
}

func TestSelfReferenceIgnored(t *testing.T) {
	configs := []fakeTool{{name: "a", deps: []string{"a"}}}
	res := Resolve(configs)
	if res.LevelByName["a"] != 0 {
		t.Fatalf("self-reference should not raise level, got %d", res.LevelByName["a"])
	}
}

func TestUnknownDependencyIgnored(t *testing.T) {
	configs := []fakeTool{{name: "a", deps: []string{"ghost"}}}
	res := Resolve(configs)
	if res.LevelByName["a"] != 0 {
		t.Fatalf("unknown dependency should not raise level, got %d", res.LevelByName["a"])
	}
}

func TestDiamondDependencyTakesMaxLevel(t *testing.T) {
	configs := []fakeTool{
		{name: "base"},
		{name: "left", deps: []string{"base"}},
		{name: "right", deps: []string{"base"}},
		{name: "top", deps: []string{"left", "right"}},
	}
	res := Resolve(configs)
	if res.LevelByName["top"] != 2 {
		t.Fatalf("expected top at level 2, got %d", res.LevelByName["top"])
	}
}

func TestInputOrderPreservedWithinLevel(t *testing.T) {
	configs := []fakeTool{
		{name: "z"},
		{name: "a"},
		{name: "m"},
	}
	res := Resolve(configs)
	got := []string{res.Levels[0][0].ToolName(), res.Levels[0][1].ToolName(), res.Levels[0][2].ToolName()}
	want := []string{"z", "a", "m"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("level order = %v, want %v", got, want)
		}
	}
}

func TestTopologicalOrderExists(t *testing.T) {
	configs := []fakeTool{
		{name: "web", deps: []string{"api"}},
		{name: "api", deps: []string{"db"}},
		{name: "db"},
	}
	res := Resolve(configs)
	// Every tool must appear strictly after all its valid dependencies
	// when levels are walked in order.
	for _, c := range configs {
		for _, dep := range c.DependsOn() {
			if res.LevelByName[dep] >= res.LevelByName[c.ToolName()] {
				t.Fatalf("%s (level %d) does not come strictly after dependency %s (level %d)",
					c.ToolName(), res.LevelByName[c.ToolName()], dep, res.LevelByName[dep])
			}
		}
	}
}
