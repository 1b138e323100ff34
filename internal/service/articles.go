package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
	"bingopos/backend/internal/xid"
)

func (s *Service) CreateArticle(ctx context.Context, req domain.ArticleRequest, actor domain.Actor) (domain.Product, error) {
	if err := require(actor, domain.PermArticles); err != nil {
		return domain.Product{}, err
	}
	req, err := normalizeArticle(req)
	if err != nil {
		return domain.Product{}, err
	}

	visible := true
	if req.VisibleToCustomer != nil {
		visible = *req.VisibleToCustomer
	}
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                xid.New("prod"),
		Name:              req.Name,
		Price:             req.Price,
		ImageURL:          req.ImageURL,
		Active:            true,
		VisibleToCustomer: visible,
		InitialStock:      req.InitialStock,
		CreatedAt:         s.clock(),
	})
	if err != nil {
		return domain.Product{}, storageFailure("create article", err)
	}

	s.logAudit(ctx, actor, "article_created", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.Price, created.InitialStock))
	return *created, nil
}

func (s *Service) UpdateArticle(ctx context.Context, productID string, req domain.ArticleRequest, actor domain.Actor) (domain.Product, error) {
	if err := require(actor, domain.PermArticles); err != nil {
		return domain.Product{}, err
	}
	req, err := normalizeArticle(req)
	if err != nil {
		return domain.Product{}, err
	}
	existing, err := s.getArticle(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	existing.Name = req.Name
	existing.Price = req.Price
	existing.ImageURL = req.ImageURL
	existing.InitialStock = req.InitialStock
	if req.VisibleToCustomer != nil {
		existing.VisibleToCustomer = *req.VisibleToCustomer
	}
	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, storageFailure("update article", err)
	}

	s.logAudit(ctx, actor, "article_updated", "product", updated.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", updated.Name, updated.Price, updated.InitialStock))
	return *updated, nil
}

// SetArticleAvailability toggles whether the article can be sold at all.
func (s *Service) SetArticleAvailability(ctx context.Context, productID string, enabled bool, actor domain.Actor) (domain.Product, error) {
	return s.toggleArticle(ctx, productID, actor, "article_availability", func(p *domain.Product) { p.Active = enabled })
}

// SetArticleVisibility toggles whether customers see the article on the
// remote order menu.
func (s *Service) SetArticleVisibility(ctx context.Context, productID string, visible bool, actor domain.Actor) (domain.Product, error) {
	return s.toggleArticle(ctx, productID, actor, "article_visibility", func(p *domain.Product) { p.VisibleToCustomer = visible })
}

func (s *Service) toggleArticle(ctx context.Context, productID string, actor domain.Actor, action string, apply func(*domain.Product)) (domain.Product, error) {
	if err := require(actor, domain.PermArticles); err != nil {
		return domain.Product{}, err
	}
	existing, err := s.getArticle(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	apply(existing)
	updated, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, storageFailure("update article", err)
	}

	s.logAudit(ctx, actor, action, "product", updated.ID, fmt.Sprintf("active=%t,visible=%t", updated.Active, updated.VisibleToCustomer))
	return *updated, nil
}

func (s *Service) getArticle(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: article %s", ErrNotFound, productID)
		}
		return nil, storageFailure("get article", err)
	}
	return product, nil
}

func normalizeArticle(req domain.ArticleRequest) (domain.ArticleRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.ImageURL = strings.TrimSpace(req.ImageURL)

	if len([]rune(req.Name)) < 3 {
		return req, invalid(ErrInvalidArticle, "name must have at least 3 characters")
	}
	if req.Price <= 0 {
		return req, invalid(ErrInvalidArticle, "price must be greater than zero")
	}
	if req.InitialStock < 0 {
		return req, invalid(ErrInvalidArticle, "initial stock cannot be negative")
	}
	if req.ImageURL != "" {
		u, err := url.Parse(req.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return req, invalid(ErrInvalidArticle, "image url %q is not valid", req.ImageURL)
		}
	}
	return req, nil
}
