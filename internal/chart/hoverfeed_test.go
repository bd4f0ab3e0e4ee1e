package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoverFeed_FanOut(t *testing.T) {
	feed := NewHoverFeed()
	ch1, cancel1 := feed.Subscribe()
	ch2, cancel2 := feed.Subscribe()
	defer cancel2()

	feed.Publish(HoverEvent{X: 1})
	assert.Equal(t, 1.0, (<-ch1).X)
	assert.Equal(t, 1.0, (<-ch2).X)

	cancel1()
	cancel1() // second call is a no-op
	assert.Equal(t, 1, feed.Subscribers())

	_, open := <-ch1
	assert.False(t, open)

	feed.Publish(HoverEvent{X: 2})
	assert.Equal(t, 2.0, (<-ch2).X)
}

func TestHoverFeed_DropsWhenFull(t *testing.T) {
	feed := NewHoverFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	for i := 0; i < hoverBuffer+10; i++ {
		feed.Publish(HoverEvent{X: float64(i)})
	}
	require.Len(t, ch, hoverBuffer)
}
