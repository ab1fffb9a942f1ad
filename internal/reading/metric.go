package reading

import "strings"

// Metric enumerates the numeric sensor channels of a Reading.
type Metric int

const (
	Temperature Metric = iota
	Humidity
	SoilMoisture
	Light
	Rain
	CO2
)

// Metrics lists every metric in display order.
var Metrics = []Metric{Temperature, Humidity, SoilMoisture, Light, Rain, CO2}

// metricInfo maps each metric to its canonical row key, accepted aliases and
// display attributes. The first key is the one the ingestion side writes.
var metricInfo = []struct {
	keys  []string
	label string
	unit  string
}{
	Temperature:  {[]string{"temperature", "temp"}, "Temperature", "°C"},
	Humidity:     {[]string{"humidity"}, "Humidity", "%"},
	SoilMoisture: {[]string{"soilMoisture", "soil_moisture", "soilmoisture", "moisture"}, "Soil Moisture", "%"},
	Light:        {[]string{"light", "lux"}, "Light", "lux"},
	Rain:         {[]string{"rain"}, "Rain", ""},
	CO2:          {[]string{"co2", "CO2"}, "CO₂", "ppm"},
}

// Key returns the canonical row key, e.g. "soilMoisture".
func (m Metric) Key() string {
	if m < 0 || int(m) >= len(metricInfo) {
		return ""
	}
	return metricInfo[m].keys[0]
}

// Label returns a human-readable name.
func (m Metric) Label() string {
	if m < 0 || int(m) >= len(metricInfo) {
		return "Sensor"
	}
	return metricInfo[m].label
}

// Unit returns the display unit, possibly empty.
func (m Metric) Unit() string {
	if m < 0 || int(m) >= len(metricInfo) {
		return ""
	}
	return metricInfo[m].unit
}

func (m Metric) String() string { return m.Key() }

func (m Metric) keys() []string {
	return metricInfo[m].keys
}

// LookupMetric resolves a row key or alias to a Metric, ignoring case.
func LookupMetric(name string) (Metric, bool) {
	for _, m := range Metrics {
		for _, k := range m.keys() {
			if strings.EqualFold(k, name) {
				return m, true
			}
		}
	}
	return 0, false
}
