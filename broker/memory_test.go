package broker_test

import (
	"testing"

	"github.com/scigolib/h5export/broker"
	"github.com/scigolib/h5export/broker/brokertest"
)

func TestMemory_Conformance(t *testing.T) {
	brokertest.Run(t, func(_ *testing.T) broker.Store {
		return broker.NewMemory()
	})
}
