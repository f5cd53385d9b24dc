package scripting

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/realmrelay/server/internal/component"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

//go:embed scripts
var builtin embed.FS

// Fallbacks used when a script is missing or errors out.
const (
	DefaultAttackRange = 3
	DefaultDamage      = 5
)

// Engine wraps a single gopher-lua VM for combat formula execution.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine with the built-in scripts loaded, then
// loads any .lua files under scriptsDir/combat on top. scriptsDir may be empty.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	if err := e.loadBuiltin(); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load builtin scripts: %w", err)
	}

	if scriptsDir != "" {
		if err := e.loadDir(filepath.Join(scriptsDir, "combat")); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load combat scripts: %w", err)
		}
	}

	return e, nil
}

func (e *Engine) loadBuiltin() error {
	return fs.WalkDir(builtin, "scripts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".lua" {
			return nil
		}
		src, err := builtin.ReadFile(path)
		if err != nil {
			return err
		}
		if err := e.vm.DoString(string(src)); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded builtin lua script", zap.String("file", path))
		return nil
	})
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

// DamageContext holds pre-packed attacker data for a damage calculation.
type DamageContext struct {
	Class        component.Class
	Level        float64
	Strength     float64
	Intelligence float64
	Dexterity    float64
}

// AttackRange calls the Lua attack_range function.
func (e *Engine) AttackRange(class component.Class) float64 {
	fn := e.vm.GetGlobal("attack_range")
	if fn == lua.LNil {
		e.log.Error("lua function attack_range not found")
		return DefaultAttackRange
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(class)); err != nil {
		e.log.Error("lua attack_range error", zap.Error(err))
		return DefaultAttackRange
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua attack_range returned non-number", zap.String("type", result.Type().String()))
		return DefaultAttackRange
	}
	return float64(n)
}

// CalcDamage calls the Lua calc_damage function.
func (e *Engine) CalcDamage(ctx DamageContext) int {
	fn := e.vm.GetGlobal("calc_damage")
	if fn == lua.LNil {
		e.log.Error("lua function calc_damage not found")
		return DefaultDamage
	}

	t := e.vm.NewTable()
	t.RawSetString("class", lua.LString(ctx.Class))
	t.RawSetString("level", lua.LNumber(ctx.Level))
	t.RawSetString("strength", lua.LNumber(ctx.Strength))
	t.RawSetString("intelligence", lua.LNumber(ctx.Intelligence))
	t.RawSetString("dexterity", lua.LNumber(ctx.Dexterity))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua calc_damage error", zap.Error(err))
		return DefaultDamage
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua calc_damage returned non-number", zap.String("type", result.Type().String()))
		return DefaultDamage
	}
	return int(n)
}

// Close releases the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
