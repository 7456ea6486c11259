package progress

import (
	"sync"
	"testing"
)

func TestCounterConcurrent(t *testing.T) {
	var c Counter
	c.EmitTask(100, "reading files")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Increment(1)
			}
		}()
	}
	wg.Wait()
	c.SetFinished()

	if c.Done != 100 || c.Total != 100 || c.Finished != 1 {
		t.Errorf("counter = %+v", &c)
	}
	if len(c.Tasks) != 1 || c.Tasks[0] != "reading files" {
		t.Errorf("tasks = %v", c.Tasks)
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(Nop); !ok {
		t.Error("OrNop(nil) is not Nop")
	}
	c := &Counter{}
	if OrNop(c) != Sink(c) {
		t.Error("OrNop replaced a non-nil sink")
	}
}
