package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM holding the tunable game formulas:
// the level curve, stat scaling, and both attack damage formulas. Balance
// changes are script edits, not code changes. Calls are serialized with an
// internal mutex; the VM itself is not goroutine-safe.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory: core scripts first, then combat scripts.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	for _, sub := range []string{"core", "combat"} {
		if err := e.loadDir(filepath.Join(scriptsDir, sub)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) Close() {
	e.vm.Close()
}

// callNumber invokes a global Lua function returning a single number.
// ok is false if the function is missing or errors.
func (e *Engine) callNumber(name string, args ...lua.LValue) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		e.log.Error("lua function not found", zap.String("fn", name))
		return 0, false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua call failed", zap.String("fn", name), zap.Error(err))
		return 0, false
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		e.log.Error("lua function returned non-number", zap.String("fn", name))
		return 0, false
	}
	return float64(n), true
}

// LevelFromExp derives a hero level from cumulative experience. The curve
// (anchor thresholds + smoothed power curve, capped at 100) lives in
// scripts/core/levels.lua; the Go fallback mirrors it.
func (e *Engine) LevelFromExp(exp int64) int {
	if n, ok := e.callNumber("level_from_exp", lua.LNumber(exp)); ok {
		return int(n)
	}
	return fallbackLevelFromExp(exp)
}

// ScaledStat scales a base stat by level: base + base*0.1*level, truncated.
func (e *Engine) ScaledStat(base int32, level int) int32 {
	if n, ok := e.callNumber("scaled_stat", lua.LNumber(base), lua.LNumber(level)); ok {
		return int32(n)
	}
	return int32(float64(base) + float64(base)*0.1*float64(level))
}

// HeroAttackDamage computes hero-side attack damage from the combined
// physical and magical attack stats.
func (e *Engine) HeroAttackDamage(atkPhys, atkMag int32) int32 {
	if n, ok := e.callNumber("hero_attack_damage", lua.LNumber(atkPhys), lua.LNumber(atkMag)); ok {
		return int32(n)
	}
	return maxInt32(1, int32(math.Round(float64(atkPhys+atkMag)*0.4)))
}

// EnemyAttackDamage computes enemy-side attack damage. variance is rolled
// by the caller (uniform in [0.8, 1.2]) so the random source stays
// injectable and test runs reproducible.
func (e *Engine) EnemyAttackDamage(attack int32, variance float64) int32 {
	if n, ok := e.callNumber("enemy_attack_damage", lua.LNumber(attack), lua.LNumber(variance)); ok {
		return int32(n)
	}
	return maxInt32(1, int32(math.Round(float64(attack)*variance)))
}

// levelAnchors mirror scripts/core/levels.lua.
var levelAnchors = []int64{100, 250, 450, 700, 1000}

func fallbackLevelFromExp(exp int64) int {
	if exp < 0 {
		exp = 0
	}
	lvl := 0
	for i, need := range levelAnchors {
		if exp >= need {
			lvl = i + 1
		}
	}
	curve := int(math.Floor(math.Pow(float64(exp)/100.0, 0.6)))
	if curve > lvl {
		lvl = curve
	}
	if lvl > 100 {
		lvl = 100
	}
	return lvl
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
