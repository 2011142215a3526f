package allocator

import "github.com/plate-filler/backend/internal/models"

// Pack places units into plates in row-major order, starting a new plate
// each time the current one is full. Trailing wells of the last plate stay
// empty. No units means no plates.
func Pack(units []models.Placement, f models.PlateFormat) []models.Plate {
	capacity := f.Capacity()
	if capacity <= 0 {
		return nil
	}

	plates := make([]models.Plate, 0, (len(units)+capacity-1)/capacity)
	for i := range units {
		well := i % capacity
		if well == 0 {
			plates = append(plates, models.NewPlate(len(plates), f))
		}
		u := units[i]
		plates[len(plates)-1].Wells[well/f.Columns][well%f.Columns] = &u
	}
	return plates
}
