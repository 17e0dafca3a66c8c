// Command gen-telemetry generates a synthetic lap CSV for testing the
// loader and dashboard without real logger data.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/gridline-data/lap.report/internal/units"
)

func main() {
	output := flag.String("o", "telemetry.csv", "output path")
	lapCount := flag.Int("laps", 3, "number of laps")
	hz := flag.Float64("hz", 10, "sample rate")
	lapTime := flag.Float64("lap-time", 120, "nominal lap time in seconds")
	vehicle := flag.String("vehicle", "gr86-01", "vehicle id")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"timestamp", "vehicle_id", "lap", "vspeed", "ath", "pbrake_f", "pbrake_r", "accx", "accy", "steering_angle", "nmot", "gear"}
	if err := w.Write(header); err != nil {
		log.Fatalf("failed to write header: %v", err)
	}

	dt := 1.0 / *hz
	elapsed := 0.0
	rows := 0
	for lap := 1; lap <= *lapCount; lap++ {
		// Each lap runs slightly quicker than the last.
		duration := *lapTime * (1 - 0.01*float64(lap-1))
		samples := int(duration / dt)
		yawRate := 2 * math.Pi / duration

		for i := 0; i < samples; i++ {
			phase := 2 * math.Pi * float64(i) / float64(samples)

			// Speed oscillates between corner and straight pace.
			speed := 40 + 18*math.Sin(3*phase)
			throttle := 50 + 50*math.Sin(3*phase)
			brake := 0.0
			if throttle < 20 {
				brake = 60 * (20 - throttle) / 20
			}
			accLatG := yawRate * speed / units.Gravity
			accLongG := 18 * 3 * yawRate * math.Cos(3*phase) / units.Gravity
			steer := 12 * math.Sin(3*phase)
			rpm := 3000 + speed*60
			gear := 2 + int(speed/15)

			row := []string{
				fmt.Sprintf("%.3f", elapsed),
				*vehicle,
				fmt.Sprintf("%d", lap),
				fmt.Sprintf("%.2f", units.FromMPS(speed, units.KPH)),
				fmt.Sprintf("%.1f", throttle),
				fmt.Sprintf("%.1f", brake),
				fmt.Sprintf("%.1f", brake*0.6),
				fmt.Sprintf("%.4f", accLongG),
				fmt.Sprintf("%.4f", accLatG),
				fmt.Sprintf("%.2f", steer),
				fmt.Sprintf("%.0f", rpm),
				fmt.Sprintf("%d", gear),
			}
			if err := w.Write(row); err != nil {
				log.Fatalf("failed to write row: %v", err)
			}
			elapsed += dt
			rows++
		}
		log.Printf("%d/%d laps", lap, *lapCount)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("failed to flush csv: %v", err)
	}
	log.Printf("✓ Created: %s (%d samples)", *output, rows)
}
