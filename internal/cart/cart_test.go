package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchbot/internal/models"
)

func line(phone, date, item string, price int) models.OrderLine {
	return models.OrderLine{
		Phone:   phone,
		Date:    date,
		Weekday: "Воскресенье",
		Item:    item,
		Price:   price,
	}
}

func TestBuildEmptySnapshot(t *testing.T) {
	c := Build(nil, "79991234567")
	assert.True(t, c.Empty())
	assert.Zero(t, c.Total)
}

func TestBuildTotalsMatchSum(t *testing.T) {
	snapshot := []models.OrderLine{
		line("79991234567", "01.06.2025", "Комплексный обед", 250),
	}
	c := Build(snapshot, "79991234567")
	assert.Equal(t, 250, c.Total)

	snapshot = append(snapshot, line("79991234567", "01.06.2025", "Компот", 50))
	c = Build(snapshot, "79991234567")
	assert.Equal(t, 300, c.Total)

	require.Len(t, c.Groups, 1)
	assert.Equal(t, []string{"Комплексный обед", "Компот"}, c.Groups[0].Items)
	assert.Equal(t, 300, c.Groups[0].Subtotal)
}

func TestBuildGroupsByDateInFirstSeenOrder(t *testing.T) {
	snapshot := []models.OrderLine{
		line("79991234567", "02.06.2025", "Салат", 120),
		line("79991234567", "01.06.2025", "Комплексный обед", 250),
		line("79991234567", "02.06.2025", "Морс", 60),
	}
	c := Build(snapshot, "79991234567")

	require.Len(t, c.Groups, 2)
	assert.Equal(t, "02.06.2025", c.Groups[0].Date)
	assert.Equal(t, 180, c.Groups[0].Subtotal)
	assert.Equal(t, "01.06.2025", c.Groups[1].Date)
	assert.Equal(t, 430, c.Total)
}

func TestBuildIgnoresOtherCustomers(t *testing.T) {
	snapshot := []models.OrderLine{
		line("79991234567", "01.06.2025", "Комплексный обед", 250),
		line("70000000001", "01.06.2025", "Салат", 120),
	}
	c := Build(snapshot, "79991234567")
	assert.Equal(t, 250, c.Total)
	require.Len(t, c.Groups, 1)
	assert.Equal(t, []string{"Комплексный обед"}, c.Groups[0].Items)
}
