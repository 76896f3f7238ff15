package repository

import (
	"database/sql"

	"github.com/safarnama/backoffice/internal/model"
)

// CustomerRepositoryInterface defines methods used by the service layer and
// the dispatcher's opt-out pre-check.
type CustomerRepositoryInterface interface {
	GetByID(id int) (*model.Customer, error)
	ListAll() ([]model.Customer, error)
	IsOptedOut(phone string) (bool, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

// GetByID fetches a customer by ID
func (r *CustomerRepository) GetByID(id int) (*model.Customer, error) {
	query := `
		SELECT id, phone, first_name, last_name, location, opted_out
		FROM customers
		WHERE id = $1
	`
	row := r.DB.QueryRow(query, id)

	var c model.Customer
	if err := row.Scan(&c.ID, &c.Phone, &c.FirstName, &c.LastName, &c.Location, &c.OptedOut); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &c, nil
}

// ListAll fetches all customers (the "all_customers" audience)
func (r *CustomerRepository) ListAll() ([]model.Customer, error) {
	query := `
		SELECT id, phone, first_name, last_name, location, opted_out
		FROM customers
	`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Phone, &c.FirstName, &c.LastName, &c.Location, &c.OptedOut); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// IsOptedOut reports whether the phone number belongs to a customer who has
// opted out of marketing messages. Unknown numbers are not opted out.
func (r *CustomerRepository) IsOptedOut(phone string) (bool, error) {
	var optedOut bool
	err := r.DB.QueryRow(`SELECT opted_out FROM customers WHERE phone=$1 LIMIT 1`, phone).Scan(&optedOut)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return optedOut, nil
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
