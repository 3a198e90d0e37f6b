// register.go adds the reference model to the sim model registry. The init()
// runs when any package imports sim/glucose; the CLI imports it directly and
// tests that need the model by name use a blank import.
package glucose

import "github.com/mdi-sim/mdi-sim/sim"

func init() {
	sim.RegisterModel(ModelName, func(values map[string]float64) (sim.GlucoseModel, error) {
		params, err := ParamsFromMap(values)
		if err != nil {
			return nil, err
		}
		return NewModel(params)
	})
}
