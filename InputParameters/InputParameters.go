package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type RunParameters struct {
	Title       string             `yaml:"Title"`
	GlobalShape []int              `yaml:"GlobalShape"`
	Pads        []int              `yaml:"Pads"`
	Periodic    []bool             `yaml:"Periodic"`
	ProcShape   []int              `yaml:"ProcShape"` // Empty selects a balanced factorization of Ranks
	Bandwidth   int                `yaml:"Bandwidth"`
	Ranks       int                `yaml:"Ranks"`
	Steps       int                `yaml:"Steps"`
	Workers     int                `yaml:"Workers"`
	Fields      int                `yaml:"Fields"` // Fields > 1 assembles a block system
	Scalars     map[string]float64 `yaml:"Scalars"`
}

func (rp *RunParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, rp); err != nil {
		return err
	}
	return rp.validate()
}

func (rp *RunParameters) validate() error {
	nd := len(rp.GlobalShape)
	if nd == 0 {
		return fmt.Errorf("GlobalShape must name at least one axis")
	}
	if len(rp.Pads) != nd {
		return fmt.Errorf("Pads has %d entries, GlobalShape has %d axes", len(rp.Pads), nd)
	}
	if len(rp.Periodic) != 0 && len(rp.Periodic) != nd {
		return fmt.Errorf("Periodic has %d entries, GlobalShape has %d axes", len(rp.Periodic), nd)
	}
	if len(rp.ProcShape) != 0 && len(rp.ProcShape) != nd {
		return fmt.Errorf("ProcShape has %d entries, GlobalShape has %d axes", len(rp.ProcShape), nd)
	}
	if rp.Ranks < 1 {
		rp.Ranks = 1
	}
	if rp.Steps < 1 {
		rp.Steps = 1
	}
	if rp.Workers < 1 {
		rp.Workers = 1
	}
	if rp.Fields < 1 {
		rp.Fields = 1
	}
	return nil
}

func (rp *RunParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", rp.Title)
	fmt.Printf("%v\t\t= Global Shape\n", rp.GlobalShape)
	fmt.Printf("%v\t\t= Pads\n", rp.Pads)
	fmt.Printf("[%d]\t\t\t= Bandwidth\n", rp.Bandwidth)
	fmt.Printf("[%d]\t\t\t= Ranks\n", rp.Ranks)
	fmt.Printf("[%d]\t\t\t= Steps\n", rp.Steps)
	fmt.Printf("[%d]\t\t\t= Workers\n", rp.Workers)
	fmt.Printf("[%d]\t\t\t= Fields\n", rp.Fields)
	keys := make([]string, len(rp.Scalars))
	i := 0
	for k := range rp.Scalars {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("Scalars[%s] = %v\n", key, rp.Scalars[key])
	}
}
