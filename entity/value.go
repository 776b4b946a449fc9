package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/andig/ngenic/ngenic"
	"github.com/andig/ngenic/period"
	"github.com/evcc-io/evcc/api"
	"github.com/evcc-io/evcc/util"
	"github.com/shopspring/decimal"
)

// conversions maps a vendor unit to the host unit and the factor between them
var conversions = map[string]map[string]float64{
	"kW": {"W": 1000},
}

// convert converts value from the vendor unit to the host unit
func convert(value float64, from, to string) (float64, error) {
	if from == to || from == "" || to == "" {
		return value, nil
	}
	if f, ok := conversions[from][to]; ok {
		return value * f, nil
	}
	return 0, fmt.Errorf("cannot convert %s to %s", from, to)
}

// round rounds to one decimal place
func round(value float64) float64 {
	f, _ := decimal.NewFromFloat(value).Round(1).Float64()
	return f
}

// measurementValue fetches the latest measurement or, given a window, the last
// measurement in that window. Missing data is expected for fresh periods and
// yields zero.
func measurementValue(ctx context.Context, conn API, log *util.Logger, tuneUuid, nodeUuid string, typ ngenic.MeasurementType, window *period.Window) (float64, error) {
	if window == nil {
		m, err := conn.LatestMeasurement(ctx, tuneUuid, nodeUuid, typ)
		if errors.Is(err, api.ErrNotAvailable) {
			log.INFO.Printf("measurement not found, this is expected when data has not been gathered yet (type=%s)", typ)
			return 0, nil
		}
		return m.Value, err
	}

	from, to := window.Format()
	res, err := conn.Measurements(ctx, tuneUuid, nodeUuid, typ, from, to, "")
	if errors.Is(err, api.ErrNotAvailable) {
		log.INFO.Printf("measurement not found for period, this is expected when data has not been gathered for the period (type=%s, from=%s, to=%s)", typ, from, to)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return res[len(res)-1].Value, nil
}
