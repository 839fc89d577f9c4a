package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/marketplace-orders/pkg/validation"
)

type productReq struct {
	Name     string `json:"name" validate:"required,min=3"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Status   string `json:"status" validate:"omitempty,oneof=created dispatched delivered"`
}

func TestStruct_ReportsJSONPaths(t *testing.T) {
	err := validation.Struct(productReq{Name: "ab", Quantity: 0, Status: "lost"})
	require.Error(t, err)

	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 3)

	assert.Equal(t, "name", verrs[0].Path)
	assert.Equal(t, "name must be at least 3 characters", verrs[0].Message)
	assert.Equal(t, "quantity", verrs[1].Path)
	assert.Equal(t, "status", verrs[2].Path)
	assert.Contains(t, verrs[2].Message, "created dispatched delivered")
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, validation.Struct(productReq{Name: "Lamp", Quantity: 1}))
}
