// Package plan implements the migration plan engine.
//
// A Plan is an ordered list of named migrations bound to a ContextProvider,
// which supplies the value migrations operate on, and a state.Store, which
// records the migrations applied so far. Plans are assembled with a Builder,
// and executed with a Selection that describes which migrations to apply or
// roll back:
//
//	p, err := plan.NewBuilder[*sql.Tx](provider, store).
//		Add("create-users", plan.Funcs(createUsers, dropUsers)).
//		Add("backfill-emails", plan.Func(backfillEmails)).
//		Build()
//	if err != nil {
//		return err
//	}
//	report, err := p.Exec(ctx, plan.ApplyAll(), plan.Commit)
//
// The applied list kept by the store is always a prefix of the plan order.
// Each migration is recorded as soon as it succeeds, so a failed or
// interrupted run can be resumed by running the same selection again.
package plan
