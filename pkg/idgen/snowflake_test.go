package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	g := &Snowflake{workerID: 1}

	const n = 10000
	seen := make(map[int64]struct{}, n)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n/4; i++ {
				id := g.Generate()
				mu.Lock()
				if _, dup := seen[id]; dup {
					t.Errorf("ID 重复: %d", id)
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestGenerateMonotonic(t *testing.T) {
	g := &Snowflake{workerID: 1}
	prev := g.Generate()
	for i := 0; i < 1000; i++ {
		id := g.Generate()
		if id <= prev {
			t.Fatalf("ID 应严格递增: %d <= %d", id, prev)
		}
		prev = id
	}
}

func TestBusinessNoPrefixes(t *testing.T) {
	if no := GenerateTransactionNo(); !strings.HasPrefix(no, "TXN") {
		t.Fatalf("流水号前缀不符: %s", no)
	}
	if no := GenerateWithdrawNo(); !strings.HasPrefix(no, "WDR") {
		t.Fatalf("提现单号前缀不符: %s", no)
	}
	if no := GenerateDepositNo(); !strings.HasPrefix(no, "DEP") {
		t.Fatalf("充值单号前缀不符: %s", no)
	}
}
