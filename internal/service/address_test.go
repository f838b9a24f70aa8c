package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldSet(t *testing.T, in AddressInput) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, fe := range ValidateAddress(in) {
		out[fe.Field] = fe.Message
	}
	return out
}

func TestValidateAddressAccepts(t *testing.T) {
	assert.Empty(t, ValidateAddress(validAddress()))

	padded := validAddress()
	padded.City = "  Praha  "
	assert.Empty(t, ValidateAddress(padded))
}

func TestValidateAddressRequiredFields(t *testing.T) {
	fields := fieldSet(t, AddressInput{})
	for _, field := range []string{
		"first_name", "last_name", "street", "street_number",
		"city", "postal_code", "country", "email",
	} {
		assert.Contains(t, fields, field)
	}

	// Whitespace-only values count as missing.
	in := validAddress()
	in.Street = "   "
	assert.Contains(t, fieldSet(t, in), "street")
}

func TestValidateAddressPostalCode(t *testing.T) {
	in := validAddress()
	in.PostalCode = "110 00"
	fields := fieldSet(t, in)
	require.Contains(t, fields, "postal_code")
	assert.Equal(t, "postal code must contain digits only", fields["postal_code"])

	in.PostalCode = "11000"
	assert.Empty(t, ValidateAddress(in))
}

func TestValidateAddressEmail(t *testing.T) {
	for _, bad := range []string{"plainaddress", "a@b", "a b@example.com", "a@exa mple.com"} {
		in := validAddress()
		in.Email = bad
		assert.Contains(t, fieldSet(t, in), "email", "email %q should be rejected", bad)
	}
}

func TestAddressInputRoundTrip(t *testing.T) {
	in := validAddress()
	in.FirstName = "  Jan "

	userID := int64(7)
	address := in.toAddress(&userID)
	assert.Equal(t, "Jan", address.FirstName)
	require.NotNil(t, address.UserID)
	assert.Equal(t, userID, *address.UserID)

	back := addressToInput(address)
	assert.Equal(t, "Jan", back.FirstName)
	assert.Equal(t, in.City, back.City)
}
