package mandel

import "strings"

// Classic regions / landmarks in the Mandelbrot set
var (
	// Classic - the whole set, the default starting view
	Classic = Region{
		Xmin: -2.5,
		Xmax: 1.0,
		Ymin: -1.0,
		Ymax: 1.0,
	}

	// Seahorse Valley – dense filaments and repeating “seahorse” curls
	SeahorseValley = Region{
		Xmin: -0.8,
		Xmax: -0.7,
		Ymin: 0.05,
		Ymax: 0.15,
	}

	// Elephant Valley – large bulb with trunk-like tendrils
	ElephantValley = Region{
		Xmin: -1.85,
		Xmax: -1.75,
		Ymin: -0.10,
		Ymax: -0.02,
	}

	// Spiral Minibrot – small Mandelbrot copy with tight spiral arms
	SpiralMinibrot = Region{
		Xmin: -0.7435,
		Xmax: -0.7420,
		Ymin: 0.1310,
		Ymax: 0.1325,
	}

	// Triple Spiral – threefold symmetric spiral structure
	TripleSpiral = Region{
		Xmin: -0.7480,
		Xmax: -0.7450,
		Ymin: 0.0950,
		Ymax: 0.0980,
	}

	// Valley of the Dragon – deep, highly detailed spiral filaments
	ValleyOfTheDragon = Region{
		Xmin: -0.7400,
		Xmax: -0.7350,
		Ymin: 0.1800,
		Ymax: 0.1850,
	}

	// Minibrot in a Mini-Spiral – self-similar Mandelbrot copy inside a spiral arm
	MinibrotInMiniSpiral = Region{
		Xmin: -1.7390,
		Xmax: -1.7375,
		Ymin: -0.0235,
		Ymax: -0.0220,
	}
)

// Landmark is a named Region.
type Landmark struct {
	Name   string
	Region Region
}

// Landmarks lists the predefined regions by their command line names.
var Landmarks = []Landmark{
	{"classic", Classic},
	{"seahorse-valley", SeahorseValley},
	{"elephant-valley", ElephantValley},
	{"spiral-minibrot", SpiralMinibrot},
	{"triple-spiral", TripleSpiral},
	{"valley-of-the-dragon", ValleyOfTheDragon},
	{"minibrot-in-mini-spiral", MinibrotInMiniSpiral},
}

// LandmarkByName looks a landmark up, ignoring case.
func LandmarkByName(name string) (Region, bool) {
	for _, l := range Landmarks {
		if strings.EqualFold(l.Name, name) {
			return l.Region, true
		}
	}
	return Region{}, false
}
