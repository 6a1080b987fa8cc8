package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/dbutil"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateWithCompany inserts the company and its first user atomically, so a
// duplicate email cannot strand an empty company row.
func (r *UserRepo) CreateWithCompany(ctx context.Context, company *model.Company, user *model.User) error {
	companySQL, companyArgs, err := builder.BuildInsert("companies", []map[string]interface{}{{
		"id":    company.ID,
		"name":  company.Name,
		"ctime": company.Ctime,
	}})
	if err != nil {
		return err
	}
	companySQL, companyArgs = dbutil.Finalize(companySQL, companyArgs)
	userSQL, userArgs, err := builder.BuildInsert("users", []map[string]interface{}{{
		"id":            user.ID,
		"company_id":    user.CompanyID,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"ctime":         user.Ctime,
	}})
	if err != nil {
		return err
	}
	userSQL, userArgs = dbutil.Finalize(userSQL, userArgs)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, companySQL, companyArgs...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, userSQL, userArgs...); err != nil {
		if dbutil.IsConflict(err) {
			return errs.ErrConflict
		}
		return err
	}
	return tx.Commit()
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	where := map[string]interface{}{"email": email}
	sqlStr, args, err := builder.BuildSelect("users", where,
		[]string{"id", "company_id", "email", "password_hash", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var user model.User
	if err := row.Scan(&user.ID, &user.CompanyID, &user.Email, &user.PasswordHash, &user.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
