// Package users is an example migration plan that evolves a JSON file of user
// records in two steps. The first migration seeds the file with initial users,
// which only have a name. The second one adds a surname to every user.
package users

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mandelsoft/vfs/pkg/vfs"

	"go.hackfix.me/migrate/plan"
	"go.hackfix.me/migrate/state"
)

// UnknownSurname is the surname given to users that existed before surnames
// were introduced.
const UnknownSurname = "<unknown-surname>"

// UserV1 is the initial version of the user record.
type UserV1 struct {
	Name string `json:"name"`
}

// UserV2 is a user record with a surname.
type UserV2 struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// InitialUsers are the users created by the first migration.
func InitialUsers() []UserV1 {
	return []UserV1{{Name: "Rarity"}, {Name: "Sweetie"}}
}

// NewPlan returns the plan that migrates the users file at path. The state of
// the plan is recorded in store.
func NewPlan(
	fs vfs.FileSystem, path string, store state.Store, logger *slog.Logger, opts ...plan.Option,
) (*plan.Plan[Client], error) {
	provider := plan.ProviderFuncs[Client]{
		Commit: func(_ context.Context) (Client, error) {
			return NewFileClient(fs, path), nil
		},
		NoCommit: func(_ context.Context) (Client, error) {
			return NewDryRunClient(NewFileClient(fs, path), logger), nil
		},
	}

	opts = append([]plan.Option{plan.WithLogger(logger)}, opts...)

	//nolint:wrapcheck // Build errors are descriptive enough.
	return plan.NewBuilder[Client](provider, store, opts...).
		Add("add-initial-users", plan.Funcs(addInitialUsers, removeInitialUsers)).
		Add("add-surname", plan.Funcs(addSurname, removeSurname)).
		Build()
}

func addInitialUsers(ctx context.Context, client Client) error {
	existing, err := client.GetAll(ctx)
	if err != nil {
		return err
	}

	for _, u := range InitialUsers() {
		raw, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed encoding user: %w", err)
		}
		existing = append(existing, raw)
	}

	return client.Overwrite(ctx, existing)
}

func removeInitialUsers(ctx context.Context, client Client) error {
	users, err := decodeAll[UserV1](ctx, client)
	if err != nil {
		return err
	}

	initial := InitialUsers()
	users = slices.DeleteFunc(users, func(u UserV1) bool {
		return slices.Contains(initial, u)
	})

	return overwriteAll(ctx, client, users)
}

func addSurname(ctx context.Context, client Client) error {
	users, err := decodeAll[UserV1](ctx, client)
	if err != nil {
		return err
	}

	usersV2 := make([]UserV2, 0, len(users))
	for _, u := range users {
		usersV2 = append(usersV2, UserV2{Name: u.Name, Surname: UnknownSurname})
	}

	return overwriteAll(ctx, client, usersV2)
}

func removeSurname(ctx context.Context, client Client) error {
	users, err := decodeAll[UserV2](ctx, client)
	if err != nil {
		return err
	}

	usersV1 := make([]UserV1, 0, len(users))
	for _, u := range users {
		usersV1 = append(usersV1, UserV1{Name: u.Name})
	}

	return overwriteAll(ctx, client, usersV1)
}

func decodeAll[T any](ctx context.Context, client Client) ([]T, error) {
	all, err := client.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]T, 0, len(all))
	for i, raw := range all {
		var u T
		if err = json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("failed decoding user at index %d: %w", i, err)
		}
		users = append(users, u)
	}

	return users, nil
}

func overwriteAll[T any](ctx context.Context, client Client, users []T) error {
	all := make([]json.RawMessage, 0, len(users))
	for _, u := range users {
		raw, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed encoding user: %w", err)
		}
		all = append(all, raw)
	}

	return client.Overwrite(ctx, all)
}
