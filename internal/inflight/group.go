// Package inflight - дедупликация одновременных вызовов одной операции.
//
// Group держит не больше одного выполняющегося вызова: все, кто пришёл пока
// вызов не завершился, получают тот же результат или ту же ошибку. Запись
// снимается при завершении вызова при любом исходе.
package inflight

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// key единственный: Group - это кэш одного ключа.
const key = "inflight"

// Group - типизированная обёртка над singleflight.Group с одним ключом.
// Нулевое значение готово к использованию.
type Group[T any] struct {
	sf      singleflight.Group
	running atomic.Int32
}

// Do выполняет fn или присоединяется к уже идущему вызову.
//
// fn получает контекст, отвязанный от отмены первого вызывающего: отмена одного
// ожидающего не должна ронять общий вызов. Ожидающий с отменённым ctx
// возвращает ctx.Err(), сам вызов продолжается. shared == true, если результат
// достался нескольким вызывающим.
func (g *Group[T]) Do(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (interface{}, error) {
		g.running.Add(1)
		defer g.running.Add(-1)
		return fn(detached)
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		v, _ := res.Val.(T)
		return v, res.Shared, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// InFlight сообщает, выполняется ли сейчас вызов.
func (g *Group[T]) InFlight() bool {
	return g.running.Load() > 0
}
