package source

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDocumentRow(t *testing.T) {
	temp, err := primitive.ParseDecimal128("21.5")
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.M{
		"_id":           primitive.NewObjectID(),
		"device_id":     "esp32-001",
		"timestamp":     primitive.NewDateTimeFromTime(ts),
		"temperature":   temp,
		"humidity":      int32(48),
		"soil_moisture": 12.5,
		"ml_prediction": true,
	}
	row := documentRow(doc)
	if _, ok := row["_id"]; ok {
		t.Error("_id should be dropped")
	}
	if row["temperature"] != 21.5 {
		t.Errorf("temperature = %#v, want 21.5", row["temperature"])
	}

	b := normalize([]map[string]any{row}, zerolog.Nop())
	if len(b.Readings) != 1 {
		t.Fatalf("normalize skipped the document")
	}
	r := b.Readings[0]
	if !r.Timestamp.Equal(ts) || r.Humidity != 48 || r.SoilMoisture != 12.5 || !r.Prediction.IrrigationNeeded() {
		t.Errorf("reading = %+v", r)
	}
}
