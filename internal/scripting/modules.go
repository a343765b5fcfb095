package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// registerModules installs the engine table: engine.log(msg) writes a debug
// log line attributed to the script.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func registerModules(L *lua.LState, logger *zap.Logger, script string) {
	engine := L.NewTable()
	L.SetField(engine, "log", L.NewFunction(func(L *lua.LState) int {
		logger.Debug("script log",
			zap.String("script", script),
			zap.String("message", L.CheckString(1)),
		)
		return 0
	}))
	L.SetGlobal("engine", engine)
}
