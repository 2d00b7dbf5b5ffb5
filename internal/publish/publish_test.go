package publish

import "testing"

func TestChannelForStock(t *testing.T) {
	got := channelForStock("AAPL")
	want := "market:stock:AAPL"
	if got != want {
		t.Errorf("channelForStock(AAPL) = %q, want %q", got, want)
	}
}

func TestChannelForIndex(t *testing.T) {
	got := channelForIndex("MKT30")
	want := "market:index:MKT30"
	if got != want {
		t.Errorf("channelForIndex(MKT30) = %q, want %q", got, want)
	}
}
