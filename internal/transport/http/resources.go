package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-reservation-cache/cache"
	"github.com/goliatone/go-reservation-cache/internal/storage"
	"github.com/goliatone/go-reservation-cache/repositorycache"
	"github.com/uptrace/bun"
)

// listResource serves the caller's own pages; administrators read the
// global list with search and status filters.
func listResource[T repositorycache.Model](res *repositorycache.Resource[T]) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := bindQuery(c)
		if err != nil {
			return err
		}
		caller := CallerFrom(c)

		var page cache.Page[T]
		if caller.IsAdmin() {
			page, err = res.ListAll(c.UserContext(), q)
		} else {
			page, err = res.ListForOwner(c.UserContext(), caller.ID, q)
		}
		if err != nil {
			return err
		}
		return c.JSON(page)
	}
}

// getResource serves one record through its detail key. Records of other
// owners look missing to non-admin callers.
func getResource[T repositorycache.Model](res *repositorycache.Resource[T]) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		rec, err := res.Find(c.UserContext(), cache.DetailKey(res.Entity(), id), cache.ViewDetail, byID(id))
		if errors.Is(err, repositorycache.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, string(res.Entity())+" not found")
		}
		if err != nil {
			return err
		}

		caller := CallerFrom(c)
		if !caller.IsAdmin() && rec.GetOwnerID() != caller.ID {
			return fiber.NewError(fiber.StatusNotFound, string(res.Entity())+" not found")
		}
		return c.JSON(rec)
	}
}

// me serves the caller's profile through the main user key.
func me(profiles *repositorycache.Resource[*storage.Profile]) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := CallerFrom(c).ID
		p, err := profiles.Find(c.UserContext(), cache.MainUserKey(id), cache.ViewDetail, byID(id))
		if errors.Is(err, repositorycache.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "profile not found")
		}
		if err != nil {
			return err
		}
		return c.JSON(p)
	}
}

func byID(id string) func(q *bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id)
	}
}
