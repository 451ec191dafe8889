package service

import (
	"errors"

	"coinbank/internal/repository"
)

// retryOnConflict 版本号 CAS 冲突重试
// 分布式锁已经把同用户写操作串行化，冲突只在锁失效时出现，重试几次即可
func retryOnConflict(retries int, fn func() error) error {
	if retries < 1 {
		retries = 3
	}
	var err error
	for i := 0; i < retries; i++ {
		err = fn()
		if !errors.Is(err, repository.ErrOptimisticLock) {
			return err
		}
	}
	return err
}
