// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

// Raw field names as sent by the upstream sales source.
const (
	FieldCustomerID    = "id_cliente"
	FieldCustomerName  = "cliente"
	FieldGender        = "genero"
	FieldProductID     = "id_producto"
	FieldProductName   = "producto"
	FieldUnitPrice     = "precio"
	FieldQuantity      = "cantidad"
	FieldAmount        = "monto"
	FieldPaymentMethod = "forma_pago"
	FieldRegisteredAt  = "fecreg"
)

// RawFields is the fixed column order of the raw event log.
var RawFields = []string{
	FieldCustomerID,
	FieldCustomerName,
	FieldGender,
	FieldProductID,
	FieldProductName,
	FieldUnitPrice,
	FieldQuantity,
	FieldAmount,
	FieldPaymentMethod,
	FieldRegisteredAt,
}

// RawEvent is one event exactly as it was received. No schema is enforced.
type RawEvent map[string]any

// RawEntry is a stored RawEvent. Seq is 1-based storage order.
// ReceivedAt is zero when the backend does not record it.
type RawEntry struct {
	Seq        int64
	ReceivedAt time.Time
	Event      RawEvent
}
