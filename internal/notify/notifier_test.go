package notify

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

func TestSubject(t *testing.T) {
	truck := models.Truck{Name: "Truck 7 - Northern"}
	assert.Equal(t, "Refuse Truck Approaching (Truck 7 - Northern)", Subject(truck))
}

func TestBody(t *testing.T) {
	truck := models.Truck{Name: "Truck 7"}
	resident := models.Resident{ID: uuid.New(), Email: "jane@example.com", Suburb: "Avondale"}

	body := Body(truck, resident)

	assert.Contains(t, body, "jane@example.com")
	assert.Contains(t, body, "Truck 7")
	assert.Contains(t, body, "Avondale")
	assert.Contains(t, body, "less than 1 km")
}

func TestLogNotifierAlwaysSucceeds(t *testing.T) {
	n := NewLogNotifier(nil)
	err := n.NotifyProximity(context.Background(), models.Truck{Name: "T"}, models.Resident{Email: "a@b.c"})
	assert.NoError(t, err)
}
