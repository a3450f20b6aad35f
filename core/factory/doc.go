// Package factory provides a small generic registry used to instantiate
// pluggable modules such as solvers and metrics sinks from configuration. A
// module is described by a type string and a map of raw settings; the
// registered factory decodes the settings into its own struct.
//
//	reg := factory.NewRegistry[milp.Solver]()
//	reg.MustRegister("bnb", func(conf map[string]any) (milp.Solver, error) {
//	    var c struct{ MaxNodes int `json:"max_nodes"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newSolver(c.MaxNodes), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "bnb", Conf: map[string]any{"max_nodes": 500}})
package factory
