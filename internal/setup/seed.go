package setup

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cg-order-portal/internal/domain"
)

// General is the reference data file: the application tag catalogue.
type General struct {
	ApplicationTags []*domain.ApplicationTag `yaml:"application_tags"`
}

// Seed is the reference data loaded into a fresh store.
type Seed struct {
	General   General
	Customers []*domain.Customer
}

// LoadSeed reads the general and customers YAML files. The customers file is a
// plain list of customers.
func LoadSeed(generalPath, customersPath string) (*Seed, error) {
	var seed Seed
	if err := decodeFile(generalPath, &seed.General); err != nil {
		return nil, err
	}
	if err := decodeFile(customersPath, &seed.Customers); err != nil {
		return nil, err
	}
	return &seed, nil
}

func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(out); err != nil && err != io.EOF {
		return domain.NewPipelineError(domain.ErrSchema, "seed", path, "invalid YAML").Wrap(err)
	}
	return nil
}

// Apply writes the seed to the store. Existing customers and tags are updated.
func (s *Seed) Apply(ctx context.Context, store domain.ProjectStore, logger *logrus.Logger) error {
	for _, customer := range s.Customers {
		if customer.CustomerID == "" {
			return domain.NewPipelineError(domain.ErrSchema, domain.EntityCustomer, customer.Name,
				"customer_id is required").WithField("customer_id")
		}
		if err := store.SaveCustomer(ctx, customer); err != nil {
			return err
		}
	}
	for _, tag := range s.General.ApplicationTags {
		if tag.Name == "" {
			return domain.NewPipelineError(domain.ErrSchema, domain.EntityTag, "",
				"name is required").WithField("name")
		}
		if err := store.SaveApplicationTag(ctx, tag); err != nil {
			return err
		}
	}
	logger.WithFields(logrus.Fields{
		"customers":        len(s.Customers),
		"application_tags": len(s.General.ApplicationTags),
	}).Info("Reference data loaded")
	return nil
}
