package megastep

import "github.com/unixpickle/anyvec"

func vecToFloats(vec anyvec.Vector) []float64 {
	var res []float64
	switch data := vec.Data().(type) {
	case []float64:
		res = data
	case []float32:
		for _, x := range data {
			res = append(res, float64(x))
		}
	default:
		panic("unsupported numeric type")
	}
	return res
}

func numToFloat(num anyvec.Numeric) float64 {
	switch num := num.(type) {
	case float64:
		return num
	case float32:
		return float64(num)
	default:
		panic("unsupported numeric type")
	}
}

func floatsToVec(c anyvec.Creator, f []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(f))
}

// gatherRows selects rows from a row-major matrix with
// the given number of columns.
func gatherRows(data []float64, cols int, rows []int) []float64 {
	res := make([]float64, 0, len(rows)*cols)
	for _, r := range rows {
		res = append(res, data[r*cols:(r+1)*cols]...)
	}
	return res
}

func meanFloats(f []float64) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, x := range f {
		sum += x
	}
	return sum / float64(len(f))
}
