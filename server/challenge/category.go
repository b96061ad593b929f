// Author: tan91
// GitHub: https://github.com/NUDTTAN91
// Blog: https://blog.csdn.net/ZXW_NUDT

package challenge

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Category 题目分类
type Category struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	ChallengeCount int    `json:"challengeCount"`
}

// HandleListCategories 获取分类列表
func HandleListCategories(c *gin.Context, db *sql.DB) {
	rows, err := db.Query(`
		SELECT c.id, c.name, COALESCE(c.description, ''),
			(SELECT COUNT(*) FROM challenges ch WHERE ch.category_id = c.id) as challenge_count
		FROM categories c ORDER BY c.id`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var cat Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.ChallengeCount); err != nil {
			continue
		}
		categories = append(categories, cat)
	}
	if categories == nil {
		categories = []Category{}
	}
	c.JSON(http.StatusOK, categories)
}

// HandleCreateCategory 创建分类
func HandleCreateCategory(c *gin.Context, db *sql.DB) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	var exists bool
	db.QueryRow(`SELECT EXISTS(SELECT 1 FROM categories WHERE name = $1)`, req.Name).Scan(&exists)
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "CATEGORY_EXISTS", "message": "分类已存在"})
		return
	}

	var id int64
	err := db.QueryRow(`INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id`,
		req.Name, NullIfEmpty(req.Description)).Scan(&id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "CREATED"})
}

// HandleUpdateCategory 更新分类
func HandleUpdateCategory(c *gin.Context, db *sql.DB) {
	id := c.Param("categoryId")

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	result, err := db.Exec(`
		UPDATE categories SET
			name = COALESCE(NULLIF($1, ''), name),
			description = COALESCE(NULLIF($2, ''), description)
		WHERE id = $3`, req.Name, req.Description, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "CATEGORY_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "UPDATED"})
}

// HandleDeleteCategory 删除分类（分类下有题目时拒绝）
func HandleDeleteCategory(c *gin.Context, db *sql.DB) {
	id := c.Param("categoryId")

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM challenges WHERE category_id = $1`, id).Scan(&count)
	if count > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CATEGORY_IN_USE", "message": "该分类下还有题目，无法删除"})
		return
	}

	result, err := db.Exec(`DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DB_ERROR"})
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "CATEGORY_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "DELETED"})
}
